package server

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"nftmarket/core/events"
	"nftmarket/core/types"
)

func dialHub(t *testing.T, hub *Hub, query string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) types.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var evt types.Event
	require.NoError(t, json.Unmarshal(data, &evt))
	return evt
}

func TestHubStreamsEvents(t *testing.T) {
	hub := NewHub(4, nil)
	conn := dialHub(t, hub, "")
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 5*time.Second, 5*time.Millisecond)

	hub.Emit(events.ListedNFT{
		Contract: collection,
		AssetID:  *uint256.NewInt(4),
		Price:    big.NewInt(42),
		Seller:   seller,
	})
	evt := readEvent(t, conn)
	require.Equal(t, events.TypeListedNFT, evt.Type)
	require.Equal(t, "42", evt.Attributes["price"])
	require.Equal(t, "4", evt.Attributes["assetId"])
}

func TestHubFiltersByType(t *testing.T) {
	hub := NewHub(4, nil)
	conn := dialHub(t, hub, "?type="+events.TypePayableTokenAdded)
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 5*time.Second, 5*time.Millisecond)

	hub.Emit(events.CanceledListedNFT{Contract: collection, AssetID: *uint256.NewInt(1), Seller: seller})
	hub.Emit(events.PayableTokenAdded{Token: common.HexToAddress("0x7777")})

	evt := readEvent(t, conn)
	require.Equal(t, events.TypePayableTokenAdded, evt.Type)
}

func TestHubUnsubscribesOnClose(t *testing.T) {
	hub := NewHub(4, nil)
	conn := dialHub(t, hub, "")
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	require.Eventually(t, func() bool { return hub.Subscribers() == 0 }, 5*time.Second, 5*time.Millisecond)
}

func TestHubDropsForLaggingSubscriber(t *testing.T) {
	hub := NewHub(1, nil)
	sub := hub.subscribe(nil)
	defer hub.unsubscribe(sub)

	for i := 0; i < 3; i++ {
		hub.Emit(events.PayableTokenAdded{Token: common.HexToAddress("0x7777")})
	}
	require.Len(t, sub.ch, 1)
}
