// Package client implements the contracts pinned to the coordinator's
// UserOps surface and the chat node's raw TCP stream in spec §6. The
// interactive prompt loop and chat window built on top of this package are
// out of scope; this package is the library those out-of-scope pieces would
// import.
package client

import (
	"context"
	"time"

	"github.com/chatmesh/server/internal/rpcutil"
	"github.com/chatmesh/server/internal/txn"
)

// UserOps is a thin wrapper over the coordinator's client-facing UserOps
// surface: registerUser, login, createChatroom, getChatroom, deleteChatroom,
// listChatrooms, reestablishChatroom.
type UserOps struct {
	rpc *rpcutil.Client
}

// NewUserOps builds a UserOps client bound to a coordinator base URL
// (e.g. "http://host:port").
func NewUserOps(coordinatorAddr string, timeout time.Duration) *UserOps {
	return &UserOps{rpc: rpcutil.NewClient("coordinator-userops", coordinatorAddr, timeout)}
}

type credRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterUser registers a new username/password pair.
func (u *UserOps) RegisterUser(ctx context.Context, username, password string) (txn.Response, error) {
	var resp txn.Response
	err := u.rpc.PostJSON(ctx, "/userOps/registerUser", credRequest{Username: username, Password: password}, &resp)
	return resp, err
}

// Login verifies a username/password pair against the data node roster.
func (u *UserOps) Login(ctx context.Context, username, password string) (txn.Response, error) {
	var resp txn.Response
	err := u.rpc.PostJSON(ctx, "/userOps/login", credRequest{Username: username, Password: password}, &resp)
	return resp, err
}

type createChatroomRequest struct {
	Name  string `json:"name"`
	Owner string `json:"owner"`
}

// CreateChatroom asks the coordinator to place a new chatroom.
func (u *UserOps) CreateChatroom(ctx context.Context, name, owner string) (txn.ChatroomResponse, error) {
	var resp txn.ChatroomResponse
	err := u.rpc.PostJSON(ctx, "/userOps/createChatroom", createChatroomRequest{Name: name, Owner: owner}, &resp)
	return resp, err
}

// GetChatroom looks up a chatroom's current placement.
func (u *UserOps) GetChatroom(ctx context.Context, name string) (txn.ChatroomResponse, error) {
	var resp txn.ChatroomResponse
	err := u.rpc.GetJSON(ctx, "/userOps/getChatroom/"+name, &resp)
	return resp, err
}

type deleteChatroomRequest struct {
	Chatroom string `json:"chatroom"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// DeleteChatroom deletes a chatroom the caller owns.
func (u *UserOps) DeleteChatroom(ctx context.Context, chatroom, username, password string) (txn.Response, error) {
	var resp txn.Response
	req := deleteChatroomRequest{Chatroom: chatroom, Username: username, Password: password}
	err := u.rpc.PostJSON(ctx, "/userOps/deleteChatroom", req, &resp)
	return resp, err
}

// ListChatrooms lists every live chatroom name.
func (u *UserOps) ListChatrooms(ctx context.Context) (txn.ChatroomListResponse, error) {
	var resp txn.ChatroomListResponse
	err := u.rpc.GetJSON(ctx, "/userOps/listChatrooms", &resp)
	return resp, err
}

type reestablishRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
}

// ReestablishChatroom asks the coordinator to re-materialize a chatroom
// whose chat node is presumed dead. Called by the receive loop after the
// stream unexpectedly closes.
func (u *UserOps) ReestablishChatroom(ctx context.Context, name, username string) (txn.ChatroomResponse, error) {
	var resp txn.ChatroomResponse
	err := u.rpc.PostJSON(ctx, "/userOps/reestablishChatroom", reestablishRequest{Name: name, Username: username}, &resp)
	return resp, err
}
