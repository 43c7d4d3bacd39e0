package lovelace

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestRefreshConcurrencySingleWinner(t *testing.T) {
	_, rdb := newTestRedis(t)
	up := newMockUserProvider()
	seedUser(t, up, "u1", "alice", "alice@example.com", "correct-password-123")
	engine := newTestEngine(t, rdb, up, newTestClock())

	login := loginAlice(t, engine)

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)

	start := make(chan struct{})
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			<-start
			_, err := engine.Refresh(context.Background(), login.Tokens.RefreshToken)
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	success := 0
	fail := 0
	for err := range results {
		if err == nil {
			success++
			continue
		}
		if errors.Is(err, ErrRefreshReuse) {
			fail++
			continue
		}
		t.Fatalf("unexpected refresh error: %v", err)
	}

	if success != 1 {
		t.Fatalf("expected exactly one refresh success, got %d", success)
	}
	if fail != n-1 {
		t.Fatalf("expected %d refresh failures, got %d", n-1, fail)
	}
}

func TestRefreshChainsStayIndependent(t *testing.T) {
	_, rdb := newTestRedis(t)
	up := newMockUserProvider()
	seedUser(t, up, "u1", "alice", "alice@example.com", "correct-password-123")
	engine := newTestEngine(t, rdb, up, newTestClock())

	const chains = 8
	const depth = 5

	var wg sync.WaitGroup
	errs := make(chan error, chains)
	for i := 0; i < chains; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := engine.Login(context.Background(), "alice", "correct-password-123")
			if err != nil {
				errs <- err
				return
			}
			token := res.Tokens.RefreshToken
			for j := 0; j < depth; j++ {
				next, err := engine.Refresh(context.Background(), token)
				if err != nil {
					errs <- err
					return
				}
				token = next.Tokens.RefreshToken
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("chain failed: %v", err)
	}
}
