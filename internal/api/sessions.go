package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/openacq/camnode/internal/acquire"
	"github.com/openacq/camnode/internal/api/models"
	"github.com/openacq/camnode/internal/backend"
)

// Session path parameter input
type SessionIDInput struct {
	SessionID string `path:"session_id" example:"0b51b283-0a5a-4d9f-b6b3-d3b36e2e365e" doc:"Session identifier"`
}

// Node path parameter input
type SessionNodeInput struct {
	SessionIDInput
	NodeName string `path:"node_name" example:"Width" doc:"Device parameter node name"`
}

// registerSessionRoutes registers all session lifecycle and node endpoints
func (s *Server) registerSessionRoutes() {
	// List tracked sessions
	huma.Register(s.api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/api/sessions",
		Summary:     "List Sessions",
		Description: "Get all sessions tracked by the acquisition manager",
		Tags:        []string{"sessions"},
		Errors:      []int{500},
	}, func(ctx context.Context, input *struct{}) (*models.SessionListResponse, error) {
		sessions := s.manager.Sessions()

		apiSessions := make([]models.SessionData, len(sessions))
		for i, sess := range sessions {
			apiSessions[i] = sessionToAPI(sess)
		}

		return &models.SessionListResponse{
			Body: models.SessionListData{
				Sessions: apiSessions,
				Count:    len(apiSessions),
			},
		}, nil
	})

	// Create session
	huma.Register(s.api, huma.Operation{
		OperationID: "create-session",
		Method:      http.MethodPost,
		Path:        "/api/sessions",
		Summary:     "Create Session",
		Description: "Open a device by enumeration index and create an acquisition session bound to it",
		Tags:        []string{"sessions"},
		Errors:      []int{400, 500},
	}, func(ctx context.Context, input *models.SessionRequest) (*models.SessionResponse, error) {
		sess, err := s.manager.Create(input.Body.DeviceIndex)
		if err != nil {
			return nil, mapAcquireError(err)
		}

		return &models.SessionResponse{Body: sessionToAPI(sess)}, nil
	})

	// Get session
	huma.Register(s.api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/api/sessions/{session_id}",
		Summary:     "Get Session",
		Description: "Get details of a specific session",
		Tags:        []string{"sessions"},
		Errors:      []int{404},
	}, func(ctx context.Context, input *SessionIDInput) (*models.SessionResponse, error) {
		sess, ok := s.manager.Get(input.SessionID)
		if !ok {
			return nil, huma.Error404NotFound("session not found")
		}

		return &models.SessionResponse{Body: sessionToAPI(sess)}, nil
	})

	// Start acquisition
	huma.Register(s.api, huma.Operation{
		OperationID: "start-session",
		Method:      http.MethodPost,
		Path:        "/api/sessions/{session_id}/start",
		Summary:     "Start Session",
		Description: "Begin streaming frames on the session",
		Tags:        []string{"sessions"},
		Errors:      []int{404, 409, 500},
	}, func(ctx context.Context, input *SessionIDInput) (*models.SessionResponse, error) {
		sess, ok := s.manager.Get(input.SessionID)
		if !ok {
			return nil, huma.Error404NotFound("session not found")
		}

		if err := sess.Start(); err != nil {
			return nil, mapAcquireError(err)
		}

		return &models.SessionResponse{Body: sessionToAPI(sess)}, nil
	})

	// Stop acquisition
	huma.Register(s.api, huma.Operation{
		OperationID: "stop-session",
		Method:      http.MethodPost,
		Path:        "/api/sessions/{session_id}/stop",
		Summary:     "Stop Session",
		Description: "Stop streaming frames. Blocked fetches are unblocked with a stopping error.",
		Tags:        []string{"sessions"},
		Errors:      []int{404, 409, 500},
	}, func(ctx context.Context, input *SessionIDInput) (*models.SessionResponse, error) {
		sess, ok := s.manager.Get(input.SessionID)
		if !ok {
			return nil, huma.Error404NotFound("session not found")
		}

		if err := sess.Stop(); err != nil {
			return nil, mapAcquireError(err)
		}

		return &models.SessionResponse{Body: sessionToAPI(sess)}, nil
	})

	// Destroy session
	huma.Register(s.api, huma.Operation{
		OperationID: "destroy-session",
		Method:      http.MethodDelete,
		Path:        "/api/sessions/{session_id}",
		Summary:     "Destroy Session",
		Description: "Stop the session if needed, release its device and remove it from the manager",
		Tags:        []string{"sessions"},
		Errors:      []int{404, 500},
	}, func(ctx context.Context, input *SessionIDInput) (*struct{}, error) {
		sess, ok := s.manager.Get(input.SessionID)
		if !ok {
			return nil, huma.Error404NotFound("session not found")
		}

		if err := sess.Destroy(); err != nil {
			return nil, mapAcquireError(err)
		}

		return &struct{}{}, nil
	})

	// Reset manager
	huma.Register(s.api, huma.Operation{
		OperationID: "reset-manager",
		Method:      http.MethodPost,
		Path:        "/api/reset",
		Summary:     "Reset",
		Description: "Stop and destroy every tracked session, unblocking any pending fetches",
		Tags:        []string{"sessions"},
	}, func(ctx context.Context, input *struct{}) (*struct{}, error) {
		s.manager.Reset()
		return &struct{}{}, nil
	})

	// Read node
	huma.Register(s.api, huma.Operation{
		OperationID: "get-node",
		Method:      http.MethodGet,
		Path:        "/api/sessions/{session_id}/nodes/{node_name}",
		Summary:     "Get Node",
		Description: "Read the current value of a device parameter node",
		Tags:        []string{"nodes"},
		Errors:      []int{404, 409},
	}, func(ctx context.Context, input *SessionNodeInput) (*models.NodeResponse, error) {
		node, err := s.sessionNode(input.SessionID, input.NodeName)
		if err != nil {
			return nil, err
		}

		return &models.NodeResponse{Body: nodeToAPI(node)}, nil
	})

	// Write node
	huma.Register(s.api, huma.Operation{
		OperationID: "set-node",
		Method:      http.MethodPut,
		Path:        "/api/sessions/{session_id}/nodes/{node_name}",
		Summary:     "Set Node",
		Description: "Write a device parameter node. Registered callbacks for the node fire once per successful write.",
		Tags:        []string{"nodes"},
		Errors:      []int{400, 404, 409},
	}, func(ctx context.Context, input *struct {
		SessionNodeInput
		Body models.NodeWriteData
	}) (*models.NodeResponse, error) {
		node, err := s.sessionNode(input.SessionID, input.NodeName)
		if err != nil {
			return nil, err
		}

		if setErr := node.SetValue(input.Body.Value); setErr != nil {
			return nil, huma.Error400BadRequest("node rejected value", setErr)
		}

		return &models.NodeResponse{Body: nodeToAPI(node)}, nil
	})

	// Execute command node
	huma.Register(s.api, huma.Operation{
		OperationID: "execute-node",
		Method:      http.MethodPost,
		Path:        "/api/sessions/{session_id}/nodes/{node_name}/execute",
		Summary:     "Execute Node",
		Description: "Execute a command node, such as a software trigger",
		Tags:        []string{"nodes"},
		Errors:      []int{400, 404, 409},
	}, func(ctx context.Context, input *SessionNodeInput) (*models.NodeResponse, error) {
		node, err := s.sessionNode(input.SessionID, input.NodeName)
		if err != nil {
			return nil, err
		}

		if execErr := node.Execute(); execErr != nil {
			return nil, huma.Error400BadRequest("node is not executable", execErr)
		}

		return &models.NodeResponse{Body: nodeToAPI(node)}, nil
	})
}

// sessionNode resolves a node by session id and node name, returning
// HTTP-shaped errors.
func (s *Server) sessionNode(sessionID, nodeName string) (backend.Node, error) {
	sess, ok := s.manager.Get(sessionID)
	if !ok {
		return nil, huma.Error404NotFound("session not found")
	}

	node, err := sess.Node(nodeName)
	if err != nil {
		return nil, mapAcquireError(err)
	}

	return node, nil
}

// sessionToAPI converts a session to API session data
func sessionToAPI(sess *acquire.Session) models.SessionData {
	info := sess.Device()
	return models.SessionData{
		SessionID:   sess.ID(),
		DeviceIndex: sess.DeviceIndex(),
		DeviceID:    info.ID,
		State:       string(sess.State()),
		Frames:      sess.FetchedFrames(),
		Device:      deviceToAPI(sess.DeviceIndex(), info),
	}
}

// nodeToAPI converts a backend node to API node data
func nodeToAPI(node backend.Node) models.NodeData {
	data := models.NodeData{
		Name: node.Name(),
		Type: string(node.Type()),
	}
	if node.Type() != backend.NodeTypeCommand {
		data.Value = node.Value()
	}
	return data
}

// mapAcquireError maps domain errors to HTTP errors
func mapAcquireError(err error) error {
	var acqErr *acquire.AcquireError
	if errors.As(err, &acqErr) {
		switch acqErr.Code {
		case acquire.ErrCodeInvalidIndex:
			return huma.Error400BadRequest(acqErr.Message, err)
		case acquire.ErrCodeUnknownNode, acquire.ErrCodeUnknownToken:
			return huma.Error404NotFound(acqErr.Message, err)
		case acquire.ErrCodeAlreadyRunning, acquire.ErrCodeNotRunning,
			acquire.ErrCodeUseAfterDestroy, acquire.ErrCodeStopping:
			return huma.Error409Conflict(acqErr.Message, err)
		case acquire.ErrCodeTimeout:
			return huma.Error504GatewayTimeout(acqErr.Message, err)
		default:
			return huma.Error500InternalServerError("internal server error", err)
		}
	}
	return huma.Error500InternalServerError("internal server error", err)
}
