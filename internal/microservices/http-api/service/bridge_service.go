package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fcpd/internal/fudi"
	"fcpd/internal/host"
	"fcpd/internal/microservices/http-api/dto"
	"fcpd/internal/microservices/tcp"
	"fcpd/internal/tools"
)

var ErrInvalidRequest = errors.New("invalid request")

// BridgeService is what the operator API needs from a running bridge
type BridgeService interface {
	Health(ctx context.Context) dto.HealthResponse
	Session(ctx context.Context) (*dto.SessionResponse, error)
	Handlers(ctx context.Context) ([]string, error)
	Objects(ctx context.Context) (*dto.ObjectsResponse, error)
	Send(ctx context.Context, words []string) error
	Select(ctx context.Context, req dto.SelectionRequest) (*dto.SelectionResponse, error)
}

type bridgeService struct {
	srv    *tcp.Server
	doc    *host.Document
	tools  *tools.Tools
	logger *slog.Logger
}

// constructor for BridgeService. Everything touching the document or the
// codec runs on the server loop through Server.Do.
func NewBridgeService(srv *tcp.Server, t *tools.Tools, logger *slog.Logger) BridgeService {
	if logger == nil {
		logger = slog.Default()
	}
	return &bridgeService{
		srv:    srv,
		doc:    t.Document(),
		tools:  t,
		logger: logger,
	}
}

func (s *bridgeService) Health(ctx context.Context) dto.HealthResponse {
	state := s.srv.State()
	status := "ok"
	if state == tcp.StateTerminated {
		status = "terminated"
	}
	return dto.HealthResponse{Status: status, State: state.String()}
}

func (s *bridgeService) Session(ctx context.Context) (*dto.SessionResponse, error) {
	resp := &dto.SessionResponse{Document: s.doc.Name}
	err := s.srv.Do(ctx, func() error {
		resp.Status = s.srv.Status()
		resp.Observers = s.tools.Observers()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *bridgeService) Handlers(ctx context.Context) ([]string, error) {
	var keywords []string
	err := s.srv.Do(ctx, func() error {
		keywords = s.srv.Dispatcher().Keywords()
		return nil
	})
	return keywords, err
}

func (s *bridgeService) Objects(ctx context.Context) (*dto.ObjectsResponse, error) {
	resp := &dto.ObjectsResponse{Document: s.doc.Name, Objects: []dto.ObjectDTO{}}
	err := s.srv.Do(ctx, func() error {
		for _, obj := range s.doc.Objects() {
			resp.Objects = append(resp.Objects, objectDTO(obj))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	resp.Count = len(resp.Objects)
	return resp, nil
}

func objectDTO(obj *host.Object) dto.ObjectDTO {
	out := dto.ObjectDTO{
		Name:       obj.Name,
		Label:      obj.Label(),
		TypeID:     obj.TypeID,
		Properties: []dto.PropertyDTO{},
	}
	for _, name := range obj.PropertyNames() {
		p, ok := obj.PropertyInfo(name)
		if !ok {
			continue
		}
		out.Properties = append(out.Properties, dto.PropertyDTO{
			Name:     p.Name,
			Type:     string(p.Type),
			Group:    p.Group,
			Value:    tools.TextOf(p.Value),
			ReadOnly: p.ReadOnly,
		})
	}
	return out
}

// Send decodes FUDI words and pushes them to the patch as one message
func (s *bridgeService) Send(ctx context.Context, words []string) error {
	if len(words) == 0 {
		return fmt.Errorf("%w: no values", ErrInvalidRequest)
	}
	return s.srv.Do(ctx, func() error {
		_, values, err := s.srv.Codec().PopValues(words, fudi.All, false)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		if err := s.srv.Send(values...); err != nil {
			return err
		}
		s.logger.Info("operator_send", "values", len(values))
		return nil
	})
}

func (s *bridgeService) Select(ctx context.Context, req dto.SelectionRequest) (*dto.SelectionResponse, error) {
	if !req.Clear && req.Object == "" {
		return nil, fmt.Errorf("%w: object or clear is required", ErrInvalidRequest)
	}
	resp := &dto.SelectionResponse{Selection: []string{}}
	err := s.srv.Do(ctx, func() error {
		if req.Clear {
			s.doc.ClearSelection()
		} else {
			obj, ok := s.doc.GetObject(req.Object)
			if !ok {
				return fmt.Errorf("%w: %s", host.ErrNoObject, req.Object)
			}
			s.doc.Select(obj, req.Sub, fudi.Vector{})
		}
		for _, obj := range s.doc.Selection() {
			resp.Selection = append(resp.Selection, obj.Name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}
