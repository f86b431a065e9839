package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/starford/hearsay/internal/api"
	"github.com/starford/hearsay/internal/apperr"
	"github.com/starford/hearsay/internal/identity"
	"github.com/starford/hearsay/internal/models"
	"github.com/starford/hearsay/internal/remote"
	"github.com/starford/hearsay/internal/rumorservice"
	"github.com/starford/hearsay/internal/testutil"
)

const (
	token          = "test-token"
	moderatorToken = "test-judge"
)

func testStore(t *testing.T) (*rumorservice.Service, string) {
	t.Helper()
	svc := rumorservice.NewService(testutil.TestDB(t),
		rumorservice.WithDifficulty(1),
		rumorservice.WithLogger(testutil.Logger()),
	)
	r := chi.NewRouter()
	r.Mount("/api", api.NewRouter(svc, token, moderatorToken, nil, nil))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return svc, srv.URL
}

func testClient(t *testing.T, storeURL string, opts ...Option) *Client {
	t.Helper()
	return testClientWith(t, storeURL, "", opts...)
}

func testClientWith(t *testing.T, storeURL, judgeToken string, opts ...Option) *Client {
	t.Helper()
	rc, err := remote.NewClient(storeURL, token, nil)
	if err != nil {
		t.Fatal(err)
	}
	rc.SetModeratorToken(judgeToken)
	ks, err := identity.NewFileKeystore(filepath.Join(t.TempDir(), "identity.json"))
	if err != nil {
		t.Fatal(err)
	}
	opts = append([]Option{WithDifficulty(0), WithLogger(testutil.Logger())}, opts...)
	return New(rc, identity.NewManager(ks, testutil.Logger()), opts...)
}

func TestPostAndFeed(t *testing.T) {
	_, url := testStore(t)
	c := testClient(t, url)
	ctx := context.Background()

	claim, err := c.Post(ctx, "the bookstore is closing next month", nil)
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	id, _ := c.Identity()
	if claim.AuthorPublicKey != id.PublicKeyHex() {
		t.Errorf("author = %s", claim.AuthorPublicKey)
	}
	if claim.PowHash[0] != '0' {
		t.Errorf("hash %s does not meet store difficulty", claim.PowHash)
	}

	reply, err := c.Post(ctx, "heard it is moving, not closing", &claim.ID)
	if err != nil {
		t.Fatalf("reply: %v", err)
	}

	feed := c.Feed(ctx, remote.FeedQuery{Sort: models.SortOldest})
	if len(feed) != 2 || feed[0].ID != claim.ID || feed[0].ChildrenCount != 1 {
		t.Fatalf("feed = %+v", feed)
	}
	replies := c.Feed(ctx, remote.FeedQuery{ParentID: claim.ID})
	if len(replies) != 1 || replies[0].ID != reply.ID {
		t.Errorf("replies = %+v", replies)
	}
}

func TestPostRejectedBeforeMining(t *testing.T) {
	_, url := testStore(t)
	mined := false
	c := testClient(t, url, WithProgress(func(uint64) { mined = true }))

	_, err := c.Post(context.Background(), "short", nil)
	var verr *apperr.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if mined {
		t.Error("mining ran for invalid content")
	}
}

func TestVoteOnce(t *testing.T) {
	_, url := testStore(t)
	author := testClient(t, url)
	voter := testClient(t, url)
	ctx := context.Background()

	claim, err := author.Post(ctx, "free pizza in the quad at noon", nil)
	if err != nil {
		t.Fatal(err)
	}
	if voter.MyVote(ctx, claim.ID) != nil {
		t.Fatal("vote present before voting")
	}

	v, err := voter.Vote(ctx, claim.ID, models.VoteVerify)
	if err != nil {
		t.Fatalf("Vote: %v", err)
	}
	if got := voter.MyVote(ctx, claim.ID); got == nil || got.ID != v.ID {
		t.Errorf("MyVote = %+v", got)
	}
	if _, err := voter.Vote(ctx, claim.ID, models.VoteDispute); !errors.Is(err, apperr.ErrAlreadyVoted) {
		t.Errorf("second vote err = %v", err)
	}

	feed := voter.Feed(ctx, remote.FeedQuery{Filter: models.FilterVerified})
	if len(feed) != 1 || feed[0].Trust.Percentage != 100 {
		t.Errorf("verified feed = %+v", feed)
	}
	if feed[0].ViewerVote == nil || *feed[0].ViewerVote != models.VoteVerify {
		t.Errorf("viewer vote = %v", feed[0].ViewerVote)
	}
}

func TestMinesAtStoreDifficulty(t *testing.T) {
	svc, url := testStore(t)
	svc.SetDifficulty(2)
	c := testClient(t, url)

	claim, err := c.Post(context.Background(), "the store wants two zeros now", nil)
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if claim.PowHash[:2] != "00" {
		t.Errorf("hash = %s", claim.PowHash)
	}
}

func TestDeleteAndResolve(t *testing.T) {
	_, url := testStore(t)
	author := testClient(t, url)
	voter := testClient(t, url)
	ctx := context.Background()

	claim, err := author.Post(ctx, "the fountain runs on weekends", nil)
	if err != nil {
		t.Fatal(err)
	}
	v, err := voter.Vote(ctx, claim.ID, models.VoteDispute)
	if err != nil {
		t.Fatal(err)
	}

	if err := voter.Delete(ctx, claim.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("stranger delete = %v", err)
	}

	if _, err := author.Resolve(ctx, v.ID, true); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("participant resolve = %v, want ErrForbidden", err)
	}
	judge := testClientWith(t, url, moderatorToken)
	rec, err := judge.Resolve(ctx, v.ID, true)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rec.SuccessfulVotes != 1 {
		t.Errorf("record = %+v", rec)
	}
	mine, err := voter.Reputation(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if mine.Factor != rec.Factor {
		t.Errorf("reputation = %+v", mine)
	}

	if err := author.Delete(ctx, claim.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if feed := author.Feed(ctx, remote.FeedQuery{}); len(feed) != 0 {
		t.Errorf("feed after delete = %+v", feed)
	}
}

func TestDegradedWhenStoreDown(t *testing.T) {
	srv := httptest.NewServer(chi.NewRouter())
	url := srv.URL
	srv.Close()
	c := testClient(t, url)
	ctx := context.Background()

	if feed := c.Feed(ctx, remote.FeedQuery{}); feed == nil || len(feed) != 0 {
		t.Errorf("feed = %v, want empty", feed)
	}
	if c.MyVote(ctx, "anything") != nil {
		t.Error("vote reported while store is down")
	}
	if _, err := c.Post(ctx, "nobody will ever read this", nil); !errors.Is(err, apperr.ErrUnavailable) {
		t.Errorf("post err = %v, want ErrUnavailable", err)
	}
}
