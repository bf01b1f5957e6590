package session

import (
	"context"
	"crypto/sha256"
	"errors"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"fumohouse/cmd/identity"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Integration tests are opt-in and require FUMO_DATABASE_URL.

func fp(s string) []byte {
	sum := sha256.Sum256([]byte(s))
	return sum[:]
}

func TestPostgresStore_CreateFindRotateDelete(t *testing.T) {
	t.Parallel()

	st, users := mustNewStores(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Microsecond)
	u, err := users.CreateUser(ctx, identity.CreateUserInput{Username: "Youmu", PasswordHash: "$argon2id$h", Now: now})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	sess, err := st.CreateSession(ctx, NewSession{UserID: u.ID, Fingerprint: fp("t1"), Now: now, ExpiresAt: now.Add(time.Hour)})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	gotU, gotS, err := st.FindSessionByFingerprint(ctx, fp("t1"), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if gotU.ID != u.ID || gotU.Username != "Youmu" || gotS.ID != sess.ID || gotS.ModifiedAt != nil {
		t.Fatalf("unexpected join result: %+v %+v", gotU, gotS)
	}

	if _, _, err := st.FindSessionByFingerprint(ctx, fp("t1"), now.Add(time.Hour)); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected expired row to be hidden, got %v", err)
	}

	later := now.Add(20 * time.Minute)
	rotated, err := st.RotateSession(ctx, Rotation{
		SessionID: sess.ID, OldFingerprint: fp("t1"), NewFingerprint: fp("t2"),
		Now: later, ExpiresAt: later.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if rotated.ID != sess.ID || rotated.ModifiedAt == nil || !rotated.ModifiedAt.Equal(later) {
		t.Fatalf("unexpected rotated row: %+v", rotated)
	}
	if !rotated.CreatedAt.Equal(now) {
		t.Fatalf("created_at must not change: %v", rotated.CreatedAt)
	}

	_, err = st.RotateSession(ctx, Rotation{
		SessionID: sess.ID, OldFingerprint: fp("t1"), NewFingerprint: fp("t3"),
		Now: later, ExpiresAt: later.Add(time.Hour),
	})
	if !errors.Is(err, ErrRotationConflict) {
		t.Fatalf("expected rotation conflict, got %v", err)
	}

	if err := st.DeleteSession(ctx, sess.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, err := st.FindSessionByFingerprint(ctx, fp("t2"), later); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestPostgresStore_DeleteUserAndExpired(t *testing.T) {
	t.Parallel()

	st, users := mustNewStores(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	now := time.Now().UTC()
	a, err := users.CreateUser(ctx, identity.CreateUserInput{Username: "a", PasswordHash: "$argon2id$h", Now: now})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	b, err := users.CreateUser(ctx, identity.CreateUserInput{Username: "b", PasswordHash: "$argon2id$h", Now: now})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	mk := func(userID, tok string, exp time.Time) {
		t.Helper()
		if _, err := st.CreateSession(ctx, NewSession{UserID: userID, Fingerprint: fp(tok), Now: now.Add(-2 * time.Hour), ExpiresAt: exp}); err != nil {
			t.Fatalf("create session %s: %v", tok, err)
		}
	}
	mk(a.ID, "a-live-1", now.Add(time.Hour))
	mk(a.ID, "a-live-2", now.Add(time.Hour))
	mk(b.ID, "b-dead", now.Add(-time.Minute))
	mk(b.ID, "b-live", now.Add(time.Hour))

	n, err := st.DeleteExpiredSessions(ctx, now)
	if err != nil || n != 1 {
		t.Fatalf("delete expired: n=%d err=%v", n, err)
	}

	n, err = st.DeleteUserSessions(ctx, a.ID)
	if err != nil || n != 2 {
		t.Fatalf("delete user sessions: n=%d err=%v", n, err)
	}

	if _, _, err := st.FindSessionByFingerprint(ctx, fp("b-live"), now); err != nil {
		t.Fatalf("b-live should survive: %v", err)
	}
}

func TestPostgresStore_CreateSession_UnknownUser(t *testing.T) {
	t.Parallel()

	st, _ := mustNewStores(t)
	now := time.Now().UTC()

	_, err := st.CreateSession(context.Background(), NewSession{UserID: "01ARZ3NDEKTSV4RRFFQ69G5FAV", Fingerprint: fp("x"), Now: now, ExpiresAt: now.Add(time.Hour)})
	if !identity.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

// ---- helpers ----

func mustNewStores(t *testing.T) (*PostgresStore, *identity.PostgresStore) {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("FUMO_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: FUMO_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, raw)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := pool.Ping(ctx); err != nil {
		if shouldSkipIntegration(err) {
			t.Skipf("integration test skipped: Postgres unreachable (FUMO_DATABASE_URL set): %v", err)
		}
		t.Fatalf("ping: %v", err)
	}

	id, err := identity.NewULID(time.Now())
	if err != nil {
		t.Fatalf("ulid: %v", err)
	}
	schema := "fumo_it_" + strings.ToLower(id)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
	})

	users, err := identity.NewPostgresStore(pool, identity.WithSchema(schema))
	if err != nil {
		t.Fatalf("identity store: %v", err)
	}
	if err := users.EnsureSchema(ctx); err != nil {
		t.Fatalf("users schema: %v", err)
	}

	st, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	if err := st.EnsureSchema(ctx); err != nil {
		t.Fatalf("sessions schema: %v", err)
	}
	return st, users
}

func shouldSkipIntegration(err error) bool {
	if os.Getenv("CI") != "" {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "dial tcp")
}
