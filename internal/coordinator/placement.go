package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chatmesh/server/internal/logging"
	"github.com/chatmesh/server/internal/metrics"
	"github.com/chatmesh/server/internal/rpcutil"
	"github.com/chatmesh/server/internal/txn"
	"go.uber.org/zap"
)

// Placer runs chatroom placement (innerCreateChatroom) and the
// getChatroomResponse scan used by reestablishChatroom.
type Placer struct {
	roster        *Roster
	clientTimeout time.Duration
}

// NewPlacer constructs a Placer bound to roster.
func NewPlacer(roster *Roster, clientTimeout time.Duration) *Placer {
	return &Placer{roster: roster, clientTimeout: clientTimeout}
}

func (p *Placer) chatNodeClient(ref ChatNodeRef) *rpcutil.Client {
	return rpcutil.NewClient("chatnode-"+ref.Host, ref.opsBaseURL(), p.clientTimeout)
}

// InnerCreateChatroom implements spec §4.5's innerCreateChatroom: checks
// every chat node for an existing chatroom of this name, selects the
// least-loaded node by (user_count, chatroom_count, iteration order), and
// places the chatroom there.
func (p *Placer) InnerCreateChatroom(ctx context.Context, name string) (txn.ChatroomPlacement, string, error) {
	chatNodes := p.roster.ChatNodes()
	if len(chatNodes) == 0 {
		metrics.ChatroomPlacements.WithLabelValues("no_nodes").Inc()
		return txn.ChatroomPlacement{}, "no chat nodes available", fmt.Errorf("no chat nodes available")
	}

	for _, cn := range chatNodes {
		names, err := p.getChatrooms(ctx, cn)
		if err != nil {
			continue
		}
		for _, existing := range names {
			if existing == name {
				metrics.ChatroomPlacements.WithLabelValues("already_exists").Inc()
				return txn.ChatroomPlacement{}, txn.SentinelChatroomExists, errors.New(txn.SentinelChatroomExists)
			}
		}
	}

	var (
		winner     ChatNodeRef
		winnerData txn.ChatroomDataResponse
		found      bool
	)
	for _, cn := range chatNodes {
		data, err := p.getChatroomData(ctx, cn)
		if err != nil {
			continue
		}
		if !found {
			winner, winnerData, found = cn, data, true
			continue
		}
		if data.UserCount < winnerData.UserCount ||
			(data.UserCount == winnerData.UserCount && data.ChatroomCount < winnerData.ChatroomCount) {
			winner, winnerData = cn, data
		}
	}
	if !found {
		metrics.ChatroomPlacements.WithLabelValues("unreachable").Inc()
		return txn.ChatroomPlacement{}, "no reachable chat node could accept the chatroom", fmt.Errorf("all chat nodes unreachable")
	}

	if err := p.createChatroomOnNode(ctx, winner, name); err != nil {
		metrics.ChatroomPlacements.WithLabelValues("winner_unreachable").Inc()
		return txn.ChatroomPlacement{}, "selected chat node did not accept the chatroom", err
	}

	metrics.ChatroomPlacements.WithLabelValues("created").Inc()
	return txn.ChatroomPlacement{
		Name:    name,
		Host:    winner.Host,
		TCPPort: winnerData.TCPPort,
		RMIPort: winner.OpsPort,
	}, "", nil
}

// GetChatroomResponse scans every chat node for name and returns its
// placement, used by reestablishChatroom when another client has already
// won the race to re-place the chatroom.
func (p *Placer) GetChatroomResponse(ctx context.Context, name string) (txn.ChatroomPlacement, bool) {
	for _, cn := range p.roster.ChatNodes() {
		names, err := p.getChatrooms(ctx, cn)
		if err != nil {
			continue
		}
		for _, existing := range names {
			if existing != name {
				continue
			}
			data, err := p.getChatroomData(ctx, cn)
			if err != nil {
				continue
			}
			return txn.ChatroomPlacement{Name: name, Host: cn.Host, TCPPort: data.TCPPort, RMIPort: cn.OpsPort}, true
		}
	}
	return txn.ChatroomPlacement{}, false
}

// DeleteChatroomOnNode implements the side effect for the explicit
// DELETECHATROOM 2PC path: finds the chat node currently hosting name and
// deletes it there.
func (p *Placer) DeleteChatroomOnNode(ctx context.Context, name string) error {
	for _, cn := range p.roster.ChatNodes() {
		names, err := p.getChatrooms(ctx, cn)
		if err != nil {
			continue
		}
		for _, existing := range names {
			if existing == name {
				client := p.chatNodeClient(cn)
				req := struct {
					Name string `json:"name"`
				}{Name: name}
				return client.PostJSON(ctx, "/chatOps/deleteChatroom", req, nil)
			}
		}
	}
	return fmt.Errorf("chatroom %q not hosted by any live chat node", name)
}

func (p *Placer) getChatrooms(ctx context.Context, cn ChatNodeRef) ([]string, error) {
	client := p.chatNodeClient(cn)
	var resp txn.ChatroomListResponse
	if err := client.GetJSON(ctx, "/chatOps/getChatrooms", &resp); err != nil {
		logging.Warn(ctx, "getChatrooms unreachable", zap.String("chat_node", cn.Host), zap.Error(err))
		return nil, err
	}
	return resp.Names, nil
}

func (p *Placer) getChatroomData(ctx context.Context, cn ChatNodeRef) (txn.ChatroomDataResponse, error) {
	client := p.chatNodeClient(cn)
	var resp txn.ChatroomDataResponse
	if err := client.GetJSON(ctx, "/chatOps/getChatroomData", &resp); err != nil {
		logging.Warn(ctx, "getChatroomData unreachable", zap.String("chat_node", cn.Host), zap.Error(err))
		return txn.ChatroomDataResponse{}, err
	}
	return resp, nil
}

func (p *Placer) createChatroomOnNode(ctx context.Context, cn ChatNodeRef, name string) error {
	client := p.chatNodeClient(cn)
	req := struct {
		Name string `json:"name"`
	}{Name: name}
	return client.PostJSON(ctx, "/chatOps/createChatroom", req, nil)
}
