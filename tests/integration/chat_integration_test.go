package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/patriotgo-chat-api/config"
	"github.com/kendall-kelly/patriotgo-chat-api/controllers"
	"github.com/kendall-kelly/patriotgo-chat-api/middleware"
	"github.com/kendall-kelly/patriotgo-chat-api/services"
	"github.com/kendall-kelly/patriotgo-chat-api/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"
)

// ChatIntegrationTestSuite runs the chat routes behind the real token
// middleware on an in-memory store
type ChatIntegrationTestSuite struct {
	suite.Suite
	cfg    *config.Config
	chat   *services.ChatService
	router *gin.Engine
	tokens map[string]string
}

// SetupSuite runs once before all tests
func (suite *ChatIntegrationTestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	suite.cfg = testutil.TestConfig()

	suite.tokens = make(map[string]string)
	for _, user := range []string{"student-demo", "driver-1", "driver-2", "stranger"} {
		suite.tokens[user] = testutil.IssueToken(suite.T(), user)
	}
}

// SetupTest gives every test a fresh store and router
func (suite *ChatIntegrationTestSuite) SetupTest() {
	logger := zaptest.NewLogger(suite.T())
	suite.chat = testutil.NewTestChatService(suite.T())

	verifier, err := middleware.NewIdentityVerifier(suite.cfg)
	suite.Require().NoError(err)

	h := controllers.NewChatController(suite.chat, logger)
	suite.router = gin.New()
	v1 := suite.router.Group("/api/v1")
	v1.Use(middleware.EnsureValidToken(verifier, logger))
	{
		v1.POST("/conversations", h.CreateConversation)
		v1.GET("/conversations", h.ListConversations)
		v1.GET("/conversations/:id", h.GetConversation)
		v1.POST("/conversations/:id/messages", h.SendMessage)
		v1.GET("/conversations/:id/messages", h.ListMessages)
	}
}

// request sends a JSON request as user. An empty user sends no token.
func (suite *ChatIntegrationTestSuite) request(method, path, user string, body interface{}) (int, map[string]interface{}) {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		suite.Require().NoError(err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+suite.tokens[user])
	}
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	var response map[string]interface{}
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &response), w.Body.String())
	return w.Code, response
}

func (suite *ChatIntegrationTestSuite) createDirect(a, b string) string {
	status, response := suite.request(http.MethodPost, "/api/v1/conversations", a,
		map[string]interface{}{"members": []string{a, b}})
	suite.Require().Contains([]int{http.StatusCreated, http.StatusOK}, status)
	return response["data"].(map[string]interface{})["conversationId"].(string)
}

func messagesPath(convID string) string {
	return "/api/v1/conversations/" + url.PathEscape(convID) + "/messages"
}

// TestRequestsWithoutTokenAreRejected checks the uniform 401 body
func (suite *ChatIntegrationTestSuite) TestRequestsWithoutTokenAreRejected() {
	status, response := suite.request(http.MethodGet, "/api/v1/conversations", "", nil)

	assert.Equal(suite.T(), http.StatusUnauthorized, status)
	assert.False(suite.T(), response["success"].(bool))
	errorObj := response["error"].(map[string]interface{})
	assert.Equal(suite.T(), "UNAUTHORIZED", errorObj["code"])
	assert.Contains(suite.T(), errorObj, "message")
}

// TestMalformedAuthHeader tests various malformed auth headers
func (suite *ChatIntegrationTestSuite) TestMalformedAuthHeader() {
	testCases := []struct {
		name   string
		header string
	}{
		{"Missing Bearer prefix", suite.tokens["driver-1"]},
		{"Wrong prefix", "Basic " + suite.tokens["driver-1"]},
		{"Empty token", "Bearer "},
		{"Only Bearer", "Bearer"},
		{"Garbage token", "Bearer invalid-token-here"},
	}

	for _, tc := range testCases {
		suite.T().Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil)
			req.Header.Set("Authorization", tc.header)

			suite.router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

// TestDirectConversationIsShared checks both members land on one conversation
func (suite *ChatIntegrationTestSuite) TestDirectConversationIsShared() {
	first := suite.createDirect("student-demo", "driver-1")
	second := suite.createDirect("driver-1", "student-demo")
	assert.Equal(suite.T(), first, second)

	status, response := suite.request(http.MethodGet, "/api/v1/conversations/"+url.PathEscape(first), "driver-1", nil)
	assert.Equal(suite.T(), http.StatusOK, status)
	data := response["data"].(map[string]interface{})
	assert.ElementsMatch(suite.T(), []interface{}{"driver-1", "student-demo"}, data["members"])
}

// TestInboxOrdersByLatestMessage checks the inbox puts the most recently
// active conversation first
func (suite *ChatIntegrationTestSuite) TestInboxOrdersByLatestMessage() {
	withDriver1 := suite.createDirect("student-demo", "driver-1")
	withDriver2 := suite.createDirect("student-demo", "driver-2")

	status, _ := suite.request(http.MethodPost, messagesPath(withDriver2), "driver-2", map[string]interface{}{"text": "Here"})
	suite.Require().Equal(http.StatusCreated, status)
	status, _ = suite.request(http.MethodPost, messagesPath(withDriver1), "driver-1", map[string]interface{}{"text": "Two minutes away"})
	suite.Require().Equal(http.StatusCreated, status)

	status, response := suite.request(http.MethodGet, "/api/v1/conversations", "student-demo", nil)
	suite.Require().Equal(http.StatusOK, status)
	inbox := response["data"].([]interface{})
	suite.Require().Len(inbox, 2)
	assert.Equal(suite.T(), withDriver1, inbox[0].(map[string]interface{})["conversationId"])
	assert.Equal(suite.T(), "Two minutes away", inbox[0].(map[string]interface{})["lastMessagePreview"])
	assert.Equal(suite.T(), withDriver2, inbox[1].(map[string]interface{})["conversationId"])
}

// TestNonMemberIsForbidden checks a valid token alone grants nothing
func (suite *ChatIntegrationTestSuite) TestNonMemberIsForbidden() {
	convID := suite.createDirect("student-demo", "driver-1")

	status, response := suite.request(http.MethodPost, messagesPath(convID), "stranger", map[string]interface{}{"text": "hi"})
	assert.Equal(suite.T(), http.StatusForbidden, status)
	assert.Equal(suite.T(), "FORBIDDEN", response["error"].(map[string]interface{})["code"])

	status, _ = suite.request(http.MethodGet, messagesPath(convID), "stranger", nil)
	assert.Equal(suite.T(), http.StatusForbidden, status)

	status, response = suite.request(http.MethodGet, "/api/v1/conversations", "stranger", nil)
	assert.Equal(suite.T(), http.StatusOK, status)
	assert.Empty(suite.T(), response["data"])
}

// TestConcurrentSendsAreAllStored sends from both members at once and
// checks every message comes back in timestamp order
func (suite *ChatIntegrationTestSuite) TestConcurrentSendsAreAllStored() {
	convID := suite.createDirect("student-demo", "driver-1")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		user := "student-demo"
		if i%2 == 1 {
			user = "driver-1"
		}
		wg.Add(1)
		go func(i int, user string) {
			defer wg.Done()
			status, _ := suite.request(http.MethodPost, messagesPath(convID), user,
				map[string]interface{}{"text": fmt.Sprintf("message %d", i)})
			assert.Equal(suite.T(), http.StatusCreated, status)
		}(i, user)
	}
	wg.Wait()

	status, response := suite.request(http.MethodGet, messagesPath(convID)+"?limit=100", "driver-1", nil)
	suite.Require().Equal(http.StatusOK, status)
	messages := response["data"].([]interface{})
	suite.Require().Len(messages, 10)

	var last float64
	for _, item := range messages {
		ts := item.(map[string]interface{})["ts"].(float64)
		assert.GreaterOrEqual(suite.T(), ts, last)
		last = ts
	}
}

func TestChatIntegrationTestSuite(t *testing.T) {
	suite.Run(t, new(ChatIntegrationTestSuite))
}
