package process

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vssbroker/internal/shared/logger"
	"vssbroker/internal/vss/authz"
	"vssbroker/internal/vss/subscribe"
	"vssbroker/internal/vss/tree"
)

const fixturePath = "../../../testdata/vss.json"

type testHarness struct {
	processor *Processor
	engine    *subscribe.Engine
	server    *recordingServer
	key       *rsa.PrivateKey
}

type recordingServer struct {
	sent map[uint64][][]byte
}

func (s *recordingServer) SendToConnection(connectionID uint64, message []byte) error {
	s.sent[connectionID] = append(s.sent[connectionID], message)
	return nil
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	store, err := tree.New(fixturePath, nil)
	require.NoError(t, err)
	access := authz.NewAccessChecker(store)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	verifier, err := authz.NewTokenVerifier(pubPEM)
	require.NoError(t, err)

	registry := authz.NewRegistry()
	server := &recordingServer{sent: make(map[uint64][][]byte)}
	log := logger.NewLogger()
	engine := subscribe.New(store, access, server, log, 16)
	engine.RunInBackground()
	t.Cleanup(engine.Stop)

	proc := New(store, access, verifier, registry, engine, log)
	return &testHarness{processor: proc, engine: engine, server: server, key: key}
}

func (h *testHarness) signToken(t *testing.T, scope map[string]string, modifyTree bool, expiry time.Time) string {
	t.Helper()
	claims := authz.Claims{
		Scope:      scope,
		ModifyTree: modifyTree,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(h.key)
	require.NoError(t, err)
	return signed
}

func (h *testHarness) authorize(t *testing.T, ch *authz.Channel, scope map[string]string, modifyTree bool) {
	t.Helper()
	tok := h.signToken(t, scope, modifyTree, time.Now().Add(time.Hour))
	req := fmt.Sprintf(`{"action":"authorize","requestId":"auth-1","tokens":%q}`, tok)
	reply := h.processor.ProcessQuery([]byte(req), ch)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(reply, &decoded))
	require.NotContains(t, decoded, "error", "authorize failed: %s", reply)
}

func decodeReply(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	return decoded
}

func TestScenarioA_SetThenGet(t *testing.T) {
	h := newHarness(t)
	ch := authz.NewChannel(1, authz.TransportWS)
	h.authorize(t, ch, map[string]string{"*": "rw"}, false)

	setReq := `{"action":"set","path":"Vehicle.OBD.EngineSpeed","value":"2345.0","requestId":"8750"}`
	setResp := decodeReply(t, h.processor.ProcessQuery([]byte(setReq), ch))
	assert.Equal(t, "8750", setResp["requestId"])
	assert.NotContains(t, setResp, "error")

	getReq := `{"action":"get","path":"Vehicle.OBD.EngineSpeed","requestId":"8756","as_string":true}`
	getResp := decodeReply(t, h.processor.ProcessQuery([]byte(getReq), ch))
	data := getResp["data"].(map[string]any)
	assert.Equal(t, "Vehicle.OBD.EngineSpeed", data["path"])
	dp := data["dp"].(map[string]any)
	assert.Equal(t, "2345", dp["value"])
}

func TestScenarioB_WildcardGetResolvesToOneLeaf(t *testing.T) {
	h := newHarness(t)
	ch := authz.NewChannel(1, authz.TransportWS)
	h.authorize(t, ch, map[string]string{"*": "rw"}, false)

	setReq := `{"action":"set","path":"Vehicle.OBD.EngineSpeed","value":"2345.0","requestId":"1"}`
	decodeReply(t, h.processor.ProcessQuery([]byte(setReq), ch))

	getReq := `{"action":"get","path":"Vehicle.*.EngineSpeed","requestId":"8756"}`
	getResp := decodeReply(t, h.processor.ProcessQuery([]byte(getReq), ch))
	data := getResp["data"].(map[string]any)
	assert.Equal(t, "Vehicle.OBD.EngineSpeed", data["path"])
}

func TestScenarioC_UnknownPath(t *testing.T) {
	h := newHarness(t)
	ch := authz.NewChannel(1, authz.TransportWS)
	h.authorize(t, ch, map[string]string{"*": "rw"}, false)

	getReq := `{"action":"get","path":"Signal.RPM1","requestId":"9"}`
	resp := decodeReply(t, h.processor.ProcessQuery([]byte(getReq), ch))
	errObj := resp["error"].(map[string]any)
	assert.Equal(t, "404", errObj["number"])
	assert.Equal(t, "Path not found", errObj["reason"])
}

func TestScenarioD_ReadDenied(t *testing.T) {
	h := newHarness(t)
	ch := authz.NewChannel(1, authz.TransportWS)
	h.authorize(t, ch, map[string]string{"Vehicle.OBD.Speed": "r"}, false)

	getReq := `{"action":"get","path":"Vehicle.Speed","requestId":"10"}`
	resp := decodeReply(t, h.processor.ProcessQuery([]byte(getReq), ch))
	errObj := resp["error"].(map[string]any)
	assert.Equal(t, "403", errObj["number"])
}

func TestScenarioE_Uint8OutOfRange(t *testing.T) {
	h := newHarness(t)
	ch := authz.NewChannel(1, authz.TransportWS)
	h.authorize(t, ch, map[string]string{"*": "rw"}, false)

	setReq := `{"action":"set","path":"Vehicle.OBD.WarmupsSinceDTCClear","value":256,"requestId":"11"}`
	resp := decodeReply(t, h.processor.ProcessQuery([]byte(setReq), ch))
	errObj := resp["error"].(map[string]any)
	assert.Equal(t, "400", errObj["number"])
}

func TestScenarioF_SubscribeNotifyUnsubscribe(t *testing.T) {
	h := newHarness(t)
	ch := authz.NewChannel(1, authz.TransportWS)
	h.authorize(t, ch, map[string]string{"*": "rw"}, false)

	subReq := `{"action":"subscribe","path":"Vehicle.OBD.EngineSpeed","requestId":"20"}`
	subResp := decodeReply(t, h.processor.ProcessQuery([]byte(subReq), ch))
	subID, ok := subResp["subscriptionId"].(string)
	require.True(t, ok)
	require.NotEmpty(t, subID)

	setReq := `{"action":"set","path":"Vehicle.OBD.EngineSpeed","value":123,"requestId":"21"}`
	decodeReply(t, h.processor.ProcessQuery([]byte(setReq), ch))

	require.Eventually(t, func() bool {
		return len(h.server.sent[1]) == 1
	}, time.Second, 5*time.Millisecond)

	unsubReq := fmt.Sprintf(`{"action":"unsubscribe","subscriptionId":%q,"requestId":"22"}`, subID)
	unsubResp := decodeReply(t, h.processor.ProcessQuery([]byte(unsubReq), ch))
	assert.Equal(t, subID, unsubResp["subscriptionId"])

	setReq2 := `{"action":"set","path":"Vehicle.OBD.EngineSpeed","value":124,"requestId":"23"}`
	decodeReply(t, h.processor.ProcessQuery([]byte(setReq2), ch))
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, h.server.sent[1], 1, "no further notifications expected after unsubscribe")
}

func TestMalformedJSON(t *testing.T) {
	h := newHarness(t)
	ch := authz.NewChannel(1, authz.TransportWS)

	resp := decodeReply(t, h.processor.ProcessQuery([]byte("{not json"), ch))
	errObj := resp["error"].(map[string]any)
	assert.Equal(t, "400", errObj["number"])
}

func TestUpdateVSSTree_RequiresModifyTree(t *testing.T) {
	h := newHarness(t)
	ch := authz.NewChannel(1, authz.TransportWS)
	h.authorize(t, ch, map[string]string{"*": "rw"}, false)

	req := `{"action":"updateVSSTree","requestId":"30","value":{"Vehicle":{"type":"branch","children":{}}}}`
	resp := decodeReply(t, h.processor.ProcessQuery([]byte(req), ch))
	errObj := resp["error"].(map[string]any)
	assert.Equal(t, "403", errObj["number"])
}

func TestGetMetaData(t *testing.T) {
	h := newHarness(t)
	ch := authz.NewChannel(1, authz.TransportWS)
	h.authorize(t, ch, map[string]string{"*": "rw"}, false)

	req := `{"action":"getMetaData","path":"Vehicle.Speed","requestId":"31"}`
	resp := decodeReply(t, h.processor.ProcessQuery([]byte(req), ch))
	assert.NotContains(t, resp, "error")
	assert.Contains(t, resp, "metadata")
}
