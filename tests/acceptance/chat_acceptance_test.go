package acceptance

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/patriotgo-chat-api/controllers"
	"github.com/kendall-kelly/patriotgo-chat-api/services"
	"github.com/kendall-kelly/patriotgo-chat-api/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"
)

// ChatAcceptanceTestSuite drives the chat API over real HTTP
type ChatAcceptanceTestSuite struct {
	suite.Suite
	server *httptest.Server
	chat   *services.ChatService
}

// SetupTest starts a server on a fresh store for each test
func (suite *ChatAcceptanceTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	suite.chat = testutil.NewTestChatService(suite.T())
	suite.server = httptest.NewServer(suite.createRouter())
}

// TearDownTest stops the server
func (suite *ChatAcceptanceTestSuite) TearDownTest() {
	suite.server.Close()
}

// createRouter creates the chat router for acceptance testing. The caller
// is picked per request with the X-Test-User header.
func (suite *ChatAcceptanceTestSuite) createRouter() *gin.Engine {
	h := controllers.NewChatController(suite.chat, zaptest.NewLogger(suite.T()))

	router := gin.New()
	router.Use(gin.Recovery())

	v1 := router.Group("/api/v1")
	v1.GET("/store/status", h.StoreStatus)
	v1.Use(testutil.MockAuthMiddleware("student-demo"))
	{
		v1.POST("/conversations", h.CreateConversation)
		v1.GET("/conversations", h.ListConversations)
		v1.GET("/conversations/:id", h.GetConversation)
		v1.POST("/conversations/:id/messages", h.SendMessage)
		v1.GET("/conversations/:id/messages", h.ListMessages)
	}
	return router
}

// makeRequest is a helper to make HTTP requests as user
func (suite *ChatAcceptanceTestSuite) makeRequest(method, path, user string, body interface{}) (*http.Response, map[string]interface{}) {
	var bodyReader *bytes.Reader
	if body != nil {
		bodyJSON, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(bodyJSON)
	} else {
		bodyReader = bytes.NewReader([]byte{})
	}

	req, err := http.NewRequest(method, suite.server.URL+path, bodyReader)
	suite.Require().NoError(err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Test-User", user)

	resp, err := http.DefaultClient.Do(req)
	suite.Require().NoError(err)
	defer resp.Body.Close()

	var responseData map[string]interface{}
	suite.Require().NoError(json.NewDecoder(resp.Body).Decode(&responseData))
	return resp, responseData
}

func conversationPath(id string) string {
	return "/api/v1/conversations/" + url.PathEscape(id)
}

// TestPickupConversation_Acceptance walks a rider and driver through a pickup
func (suite *ChatAcceptanceTestSuite) TestPickupConversation_Acceptance() {
	// Step 1: rider opens a chat with the driver
	resp, data := suite.makeRequest(http.MethodPost, "/api/v1/conversations", "student-demo",
		map[string]interface{}{"members": []string{"student-demo", "driver-1"}})
	suite.Require().Equal(http.StatusCreated, resp.StatusCode)
	conv := data["data"].(map[string]interface{})
	convID := conv["conversationId"].(string)
	assert.Equal(suite.T(), "direct", conv["type"])

	// Step 2: driver says where they are
	resp, data = suite.makeRequest(http.MethodPost, conversationPath(convID)+"/messages", "driver-1",
		map[string]interface{}{"text": "Yo! I'm parked near the Rappahannock deck entrance. Look for the silver Tesla."})
	suite.Require().Equal(http.StatusCreated, resp.StatusCode)
	first := data["data"].(map[string]interface{})

	// Step 3: rider replies
	resp, data = suite.makeRequest(http.MethodPost, conversationPath(convID)+"/messages", "student-demo",
		map[string]interface{}{"text": "Got it, crossing now"})
	suite.Require().Equal(http.StatusCreated, resp.StatusCode)
	reply := data["data"].(map[string]interface{})
	assert.Greater(suite.T(), reply["ts"].(float64), first["ts"].(float64))

	// Step 4: driver's inbox shows the reply on top
	resp, data = suite.makeRequest(http.MethodGet, "/api/v1/conversations", "driver-1", nil)
	suite.Require().Equal(http.StatusOK, resp.StatusCode)
	inbox := data["data"].([]interface{})
	suite.Require().Len(inbox, 1)
	top := inbox[0].(map[string]interface{})
	assert.Equal(suite.T(), convID, top["conversationId"])
	assert.Equal(suite.T(), "Got it, crossing now", top["lastMessagePreview"])
	assert.Equal(suite.T(), reply["ts"], top["lastMessageAt"])

	// Step 5: driver reads the thread after their own message
	resp, data = suite.makeRequest(http.MethodGet,
		conversationPath(convID)+"/messages?after="+formatTS(first["ts"]), "driver-1", nil)
	suite.Require().Equal(http.StatusOK, resp.StatusCode)
	messages := data["data"].([]interface{})
	suite.Require().Len(messages, 1)
	assert.Equal(suite.T(), "student-demo", messages[0].(map[string]interface{})["senderId"])
}

// TestSeededInbox_Acceptance loads the demo data and reads it back
func (suite *ChatAcceptanceTestSuite) TestSeededInbox_Acceptance() {
	written, err := suite.chat.Seed(context.Background(), services.DemoData)
	suite.Require().NoError(err)
	assert.Equal(suite.T(), 3, written)

	resp, data := suite.makeRequest(http.MethodGet, "/api/v1/conversations", "student-demo", nil)
	suite.Require().Equal(http.StatusOK, resp.StatusCode)
	inbox := data["data"].([]interface{})
	suite.Require().Len(inbox, 2)
	assert.Equal(suite.T(), "dm#driver-2#student-demo", inbox[0].(map[string]interface{})["conversationId"])
	assert.Equal(suite.T(), "On Johnson Center side, wearing a green cap.", inbox[0].(map[string]interface{})["lastMessagePreview"])

	resp, data = suite.makeRequest(http.MethodGet, conversationPath("dm#driver-1#student-demo")+"/messages", "driver-1", nil)
	suite.Require().Equal(http.StatusOK, resp.StatusCode)
	assert.Len(suite.T(), data["data"], 2)
}

// TestOutsiderCannotRead_Acceptance checks membership gates every read
func (suite *ChatAcceptanceTestSuite) TestOutsiderCannotRead_Acceptance() {
	resp, data := suite.makeRequest(http.MethodPost, "/api/v1/conversations", "student-demo",
		map[string]interface{}{"members": []string{"student-demo", "driver-1", "driver-2"}, "rideId": "ride-42"})
	suite.Require().Equal(http.StatusCreated, resp.StatusCode)
	convID := data["data"].(map[string]interface{})["conversationId"].(string)

	resp, _ = suite.makeRequest(http.MethodGet, conversationPath(convID), "driver-3", nil)
	assert.Equal(suite.T(), http.StatusForbidden, resp.StatusCode)

	resp, _ = suite.makeRequest(http.MethodGet, conversationPath(convID)+"/messages", "driver-3", nil)
	assert.Equal(suite.T(), http.StatusForbidden, resp.StatusCode)

	resp, _ = suite.makeRequest(http.MethodGet, conversationPath(convID), "driver-2", nil)
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)
}

func formatTS(ts interface{}) string {
	b, _ := json.Marshal(ts)
	return string(b)
}

func TestChatAcceptanceTestSuite(t *testing.T) {
	suite.Run(t, new(ChatAcceptanceTestSuite))
}
