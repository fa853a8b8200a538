// Package txn defines the wire types shared between the coordinator and its
// data-node participants: the transaction record itself, the vote/decision
// vocabulary, and the structured responses every remote surface returns.
package txn

import "fmt"

// Op identifies the kind of mutation a Transaction carries.
type Op string

const (
	OpCreateUser     Op = "CREATEUSER"
	OpCreateChatroom Op = "CREATECHATROOM"
	OpDeleteChatroom Op = "DELETECHATROOM"
	OpLogMessage     Op = "LOGMESSAGE"
)

// Ack is the three-valued vote/decision vocabulary used across canCommit,
// getDecision, and doCommit/doAbort fan-out.
type Ack string

const (
	AckYes Ack = "YES"
	AckNo  Ack = "NO"
	AckNA  Ack = "NA"
)

// Transaction is immutable once constructed; Index is the sole identifier
// used between coordinator and participants within one coordinator lifetime.
type Transaction struct {
	Index int64  `json:"index"`
	Op    Op     `json:"op"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (t Transaction) String() string {
	return fmt.Sprintf("txn(index=%d, op=%s, key=%q)", t.Index, t.Op, t.Key)
}

// Status is the two-valued outcome of a synchronous remote operation.
type Status string

const (
	StatusOK   Status = "OK"
	StatusFail Status = "FAIL"
)

// Response is the generic structured reply for remote operations that do
// not need to return anything beyond success/failure and a message.
type Response struct {
	Status  Status `json:"status"`
	Message string `json:"message"`
}

// OKResponse builds a successful Response.
func OKResponse(message string) Response {
	return Response{Status: StatusOK, Message: message}
}

// FailResponse builds a failed Response carrying the fixed, user-visible
// message for the gate that rejected the call.
func FailResponse(message string) Response {
	return Response{Status: StatusFail, Message: message}
}

// ChatroomPlacement describes where a chatroom is hosted.
type ChatroomPlacement struct {
	Name    string `json:"name"`
	Host    string `json:"host"`
	TCPPort int    `json:"tcp_port"`
	RMIPort int    `json:"rmi_port"`
}

// ChatroomResponse is returned by getChatroom/createChatroom/reestablishChatroom.
type ChatroomResponse struct {
	Status   Status            `json:"status"`
	Message  string            `json:"message"`
	Chatroom ChatroomPlacement `json:"chatroom,omitempty"`
}

// ChatroomListResponse is returned by listChatrooms.
type ChatroomListResponse struct {
	Status Status   `json:"status"`
	Names  []string `json:"names"`
}

// ChatroomDataResponse is a chat node's load report, used during placement.
type ChatroomDataResponse struct {
	ChatroomCount int    `json:"chatroom_count"`
	UserCount     int    `json:"user_count"`
	Host          string `json:"host"`
	RMIPort       int    `json:"rmi_port"`
	TCPPort       int    `json:"tcp_port"`
}

// RegisterResponse is returned by registerDataNode/registerChatNode. Token
// is a signed participant identity token the node must present on every
// subsequent 2PC callback.
type RegisterResponse struct {
	Port  int    `json:"port"`
	Token string `json:"token,omitempty"`
}

// RegisterDataNodeRequest is sent once at startup by a data node joining
// the coordinator's data_ops/data_participants rosters. KnownChatrooms lets
// the coordinator recover chatroom placements a restarted data node already
// holds on disk.
type RegisterDataNodeRequest struct {
	Host            string   `json:"host"`
	OpsPort         int      `json:"ops_port"`
	ParticipantPort int      `json:"participant_port"`
	KnownChatrooms  []string `json:"known_chatrooms"`
}

// RegisterChatNodeRequest is sent once at startup by a chat node joining
// the coordinator's chat_nodes roster.
type RegisterChatNodeRequest struct {
	Host       string `json:"host"`
	OpsPort    int    `json:"ops_port"`
	StreamPort int    `json:"stream_port"`
}

// AckResponse wraps an Ack for JSON transport.
type AckResponse struct {
	Ack Ack `json:"ack"`
}

// SentinelChatroomExists is the load-bearing sentinel message distinguishing
// "someone beat us to placement" from "unrecoverable placement failure" in
// reestablishChatroom.
const SentinelChatroomExists = "A chatroom with this name already exists"
