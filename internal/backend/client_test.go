package backend

import (
	"context"
	"errors"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cwrk-planet/spaces/internal/auth"
	"github.com/cwrk-planet/spaces/internal/domain"
	"github.com/cwrk-planet/spaces/internal/memstore"
	"github.com/cwrk-planet/spaces/internal/service"
	httpx "github.com/cwrk-planet/spaces/internal/transport/http"
	grpcx "github.com/cwrk-planet/spaces/internal/transport/grpc"
	"github.com/cwrk-planet/spaces/pkg/errs"
)

var (
	host  = domain.User{ID: "host", DisplayName: "Host"}
	alice = domain.User{ID: "u1", DisplayName: "Alice"}
)

type testServer struct {
	svc    *service.SpaceService
	url    string
	signer *auth.JWTSigner
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	signer := auth.NewJWTSigner([]byte("secret"), "spaces", "spaces-api", time.Hour, 0)
	svc := service.NewSpaceService(memstore.NewSpaceRepository())
	srv := httptest.NewServer(httpx.NewRouter(httpx.RouterDeps{Handler: httpx.NewHandler(svc), Verifier: signer}))
	t.Cleanup(srv.Close)
	return &testServer{svc: svc, url: srv.URL, signer: signer}
}

func (s *testServer) client(t *testing.T, u domain.User) *Client {
	t.Helper()
	tok, err := s.signer.SignAccessToken(u, time.Now())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	c, err := New(Options{BaseURL: s.url, Token: tok, Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestNew_RequiresBaseURL(t *testing.T) {
	if _, err := New(Options{}); !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestClient_MembershipRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	sp, err := ts.svc.CreateSpace(ctx, host, service.CreateInput{AskToJoin: true, AskToSpeak: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	hc, ac := ts.client(t, host), ts.client(t, alice)

	q := []domain.JoinRequest{{ID: alice.ID, DisplayName: alice.DisplayName}}
	if err := ac.UpdateSpace(ctx, sp.ID, domain.Patch{AskToJoinQueue: &q}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := hc.ApproveJoinRequest(ctx, sp.ID, alice.ID, false); err != nil {
		t.Fatalf("approve join: %v", err)
	}
	if err := ac.RequestToSpeak(ctx, sp.ID, alice.ID); err != nil {
		t.Fatalf("request speak: %v", err)
	}
	if err := hc.ApproveRequest(ctx, sp.ID, alice.ID, true); err != nil {
		t.Fatalf("approve speak: %v", err)
	}
	if err := hc.MuteParticipant(ctx, sp.ID, alice.ID, true); err != nil {
		t.Fatalf("mute: %v", err)
	}

	got, err := ac.FetchSpace(ctx, sp.ID)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	p, ok := got.Participant(alice.ID)
	if !ok || p.Role != domain.RoleSpeaker || !p.Muted {
		t.Fatalf("unexpected participant: %+v ok=%v", p, ok)
	}

	if err := ac.LeaveSpace(ctx, sp.ID, alice.ID); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if err := hc.EndSpace(ctx, sp.ID); err != nil {
		t.Fatalf("end: %v", err)
	}
	if err := ac.JoinSpace(ctx, sp.ID, alice, false); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("join after end: %v", err)
	}
}

func TestClient_ErrorMapping(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	ac := ts.client(t, alice)

	if _, err := ac.FetchSpace(ctx, "missing"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("missing: %v", err)
	}
	sp, _ := ts.svc.CreateSpace(ctx, host, service.CreateInput{})
	if err := ac.BanParticipant(ctx, sp.ID, "host"); !errors.Is(err, errs.ErrPermissionDenied) {
		t.Fatalf("non-host ban: %v", err)
	}

	dead, _ := New(Options{BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond})
	if _, err := dead.FetchSpace(ctx, sp.ID); !errors.Is(err, errs.ErrUpstream) {
		t.Fatalf("unreachable: %v", err)
	}
}

func TestWaitHealthy(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = grpcx.NewServer(time.Second).Serve(ctx, lis) }()

	waitCtx, waitCancel := context.WithTimeout(ctx, 3*time.Second)
	defer waitCancel()
	if err := WaitHealthy(waitCtx, lis.Addr().String(), grpcx.ServiceName, 50*time.Millisecond); err != nil {
		t.Fatalf("wait healthy: %v", err)
	}
}
