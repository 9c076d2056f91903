package handler_test

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/xxxsen/common/webapi"

	"github.com/carebridge/carebridge/internal/agent"
	"github.com/carebridge/carebridge/internal/ai"
	"github.com/carebridge/carebridge/internal/authz"
	"github.com/carebridge/carebridge/internal/config"
	"github.com/carebridge/carebridge/internal/filestore"
	"github.com/carebridge/carebridge/internal/handler"
	"github.com/carebridge/carebridge/internal/model"
	"github.com/carebridge/carebridge/internal/pkg/password"
	"github.com/carebridge/carebridge/internal/pkg/timeutil"
	"github.com/carebridge/carebridge/internal/repo"
	"github.com/carebridge/carebridge/internal/service"
	"github.com/carebridge/carebridge/internal/trace"
	"github.com/carebridge/carebridge/test/testutil"
)

type apiResponse struct {
	Code    uint32          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

type testEnv struct {
	router   http.Handler
	userRepo *repo.UserRepo
}

// setupRouter builds the full stack on a test database. The policy
// endpoint is unset, so authorization exercises the local fallback
// rules, and there is no embedder, so embedding passes are deferred.
func setupRouter(t *testing.T) (*testEnv, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, cleanup := testutil.OpenTestDB(t)
	userRepo := repo.NewUserRepo(db)
	patientRepo := repo.NewPatientRepo(db)
	documentRepo := repo.NewDocumentRepo(db)
	embeddingRepo := repo.NewEmbeddingRepo(db)

	policy := authz.NewClient("", "", time.Second)
	syncer := authz.NewSyncer(policy, userRepo, patientRepo, documentRepo)
	tracer := trace.NewLogger(config.TraceConfig{})

	store, err := filestore.New(config.FileStoreConfig{
		Type: "local",
		Data: map[string]interface{}{"dir": t.TempDir()},
	})
	require.NoError(t, err)

	jwtSecret := []byte("test-secret")
	authService := service.NewAuthService(userRepo, jwtSecret, time.Hour)
	userService := service.NewUserService(userRepo, syncer)
	patientService := service.NewPatientService(patientRepo, userRepo, policy, syncer)
	documentService := service.NewDocumentService(documentRepo, patientRepo, embeddingRepo,
		ai.NewChunker(), nil, policy, syncer, store)
	ragService := service.NewRagService(documentRepo, embeddingRepo, userRepo,
		nil, nil, policy, tracer, service.RagOptions{})

	chatClient, err := ai.NewChatClient(map[string]interface{}{})
	require.NoError(t, err)
	agentService := service.NewAgentService(
		agent.NewOpenAIChatModel(chatClient, "test-model"),
		"test-model", "", 3, nil, tracer, patientService, ragService, nil)

	deps := handler.RouterDeps{
		Auth:        handler.NewAuthHandler(authService),
		Users:       handler.NewUserHandler(userService),
		Patients:    handler.NewPatientHandler(patientService),
		Documents:   handler.NewDocumentHandler(documentService, 1<<20),
		Chat:        handler.NewChatHandler(ragService),
		Agent:       handler.NewAgentHandler(agentService),
		AuthService: authService,
		JWTSecret:   jwtSecret,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		"",
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
	)
	require.NoError(t, err)

	return &testEnv{router: engine, userRepo: userRepo}, cleanup
}

func (e *testEnv) seedUser(t *testing.T, role, department, plainPassword string) *model.User {
	t.Helper()
	hash, err := password.Hash(plainPassword)
	require.NoError(t, err)
	now := timeutil.NowUnix()
	user := &model.User{
		ID:           newTestID(),
		Username:     "user-" + newTestID()[:8],
		Email:        newTestID()[:8] + "@example.com",
		PasswordHash: hash,
		Role:         role,
		Department:   department,
		IsActive:     true,
		Ctime:        now,
		Mtime:        now,
	}
	require.NoError(t, e.userRepo.Create(t.Context(), user))
	return user
}

func (e *testEnv) login(t *testing.T, username, plainPassword string) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]interface{}{
		"username": username,
		"password": plainPassword,
	})
	require.Zero(t, resp.Code, resp.Message)
	var payload struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &payload))
	require.NotEmpty(t, payload.Token)
	return payload.Token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *apiResponse {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return &resp
}
