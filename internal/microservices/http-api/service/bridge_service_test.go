package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"fcpd/internal/fudi"
	"fcpd/internal/host"
	"fcpd/internal/microservices/http-api/dto"
	"fcpd/internal/microservices/tcp"
	"fcpd/internal/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startBridge runs a server on a free port with the tools registered and
// a Box in the document
func startBridge(t *testing.T) (BridgeService, *tcp.Server, *host.Document) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	doc := host.NewDocument("Unnamed", nil, logger)
	_, err := doc.AddObject("Part::Box", "Box")
	require.NoError(t, err)

	srv := tcp.NewServer(tcp.Options{
		ListenAddress: "127.0.0.1",
		PollInterval:  10 * time.Millisecond,
		Logger:        logger,
	}, fudi.NewCodec(nil, doc))
	tl := tools.New(doc, tools.Options{Logger: logger})
	require.NoError(t, tl.Register(srv))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, srv.Start(ctx))
	t.Cleanup(func() {
		srv.Terminate()
		cancel()
		tl.Close()
	})
	return NewBridgeService(srv, tl, logger), srv, doc
}

func TestBridgeService_HealthAndSession(t *testing.T) {
	svc, srv, _ := startBridge(t)
	ctx := context.Background()

	health := svc.Health(ctx)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "listening", health.State)

	session, err := svc.Session(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Unnamed", session.Document)
	assert.Equal(t, srv.Addr(), session.ListenAddress)
	assert.Empty(t, session.Observers)

	srv.Terminate()
	assert.Equal(t, "terminated", svc.Health(ctx).Status)
	_, err = svc.Session(ctx)
	assert.ErrorIs(t, err, tcp.ErrServerClosed)
}

func TestBridgeService_Handlers(t *testing.T) {
	svc, _, _ := startBridge(t)

	keywords, err := svc.Handlers(context.Background())
	require.NoError(t, err)
	assert.Contains(t, keywords, "get")
	assert.Contains(t, keywords, "selobserver")
	assert.Contains(t, keywords, "str")
}

func TestBridgeService_Objects(t *testing.T) {
	svc, _, _ := startBridge(t)

	resp, err := svc.Objects(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, resp.Count)

	box := resp.Objects[0]
	assert.Equal(t, "Box", box.Name)
	assert.Equal(t, "Part::Box", box.TypeID)
	require.NotEmpty(t, box.Properties)
	assert.Equal(t, "Label", box.Properties[0].Name)
	assert.Equal(t, "Box", box.Properties[0].Value)
}

func TestBridgeService_Send(t *testing.T) {
	svc, srv, _ := startBridge(t)
	ctx := context.Background()

	// no patch yet: the message waits in the buffer
	require.NoError(t, svc.Send(ctx, []string{"0", "hello"}))
	assert.Equal(t, len("0 hello;\n"), srv.Status().BufferedBytes)

	assert.ErrorIs(t, svc.Send(ctx, nil), ErrInvalidRequest)
	assert.ErrorIs(t, svc.Send(ctx, []string{"^7"}), ErrInvalidRequest)
}

func TestBridgeService_Select(t *testing.T) {
	svc, _, doc := startBridge(t)
	ctx := context.Background()

	resp, err := svc.Select(ctx, dto.SelectionRequest{Object: "Box", Sub: "Face1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Box"}, resp.Selection)
	require.Len(t, doc.SelectionEx(), 1)
	assert.Equal(t, "Face1", doc.SelectionEx()[0].Sub)

	_, err = svc.Select(ctx, dto.SelectionRequest{Object: "Nope"})
	assert.ErrorIs(t, err, host.ErrNoObject)

	_, err = svc.Select(ctx, dto.SelectionRequest{})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	resp, err = svc.Select(ctx, dto.SelectionRequest{Clear: true})
	require.NoError(t, err)
	assert.Empty(t, resp.Selection)
	assert.Empty(t, doc.Selection())
}
