package cache

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeRedis speaks just enough RESP to exercise RedisClient.
type fakeRedis struct {
	mu       sync.Mutex
	data     map[string]string
	ttls     map[string]string
	listener net.Listener
}

func startFakeRedis(t *testing.T) *fakeRedis {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &fakeRedis{data: map[string]string{}, ttls: map[string]string{}, listener: listener}
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go srv.serve(conn)
		}
	}()
	return srv
}

func (s *fakeRedis) serve(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	for {
		resp, err := readResponse(reader)
		if err != nil {
			return
		}
		items, _ := resp.([]interface{})
		args := make([]string, len(items))
		for i, item := range items {
			b, _ := item.([]byte)
			args[i] = string(b)
		}
		if _, err := conn.Write([]byte(s.handle(args))); err != nil {
			return
		}
	}
}

func bulk(value string) string {
	return fmt.Sprintf("$%d\r\n%s\r\n", len(value), value)
}

func (s *fakeRedis) handle(args []string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch strings.ToUpper(args[0]) {
	case "PING":
		return "+PONG\r\n"
	case "SET":
		s.data[args[1]] = args[2]
		delete(s.ttls, args[1])
		if len(args) == 5 && strings.EqualFold(args[3], "PX") {
			s.ttls[args[1]] = args[4]
		}
		return "+OK\r\n"
	case "GET":
		value, ok := s.data[args[1]]
		if !ok {
			return "$-1\r\n"
		}
		return bulk(value)
	case "DEL":
		removed := 0
		for _, key := range args[1:] {
			if _, ok := s.data[key]; ok {
				removed++
				delete(s.data, key)
			}
		}
		return fmt.Sprintf(":%d\r\n", removed)
	case "SCAN":
		// Single page: cursor always returns to zero.
		var keys []string
		for key := range s.data {
			if ok, _ := path.Match(args[3], key); ok {
				keys = append(keys, key)
			}
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString("*2\r\n")
		b.WriteString(bulk("0"))
		fmt.Fprintf(&b, "*%d\r\n", len(keys))
		for _, key := range keys {
			b.WriteString(bulk(key))
		}
		return b.String()
	default:
		return "-ERR unknown command\r\n"
	}
}

func (s *fakeRedis) snapshot() (map[string]string, map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := make(map[string]string, len(s.data))
	for k, v := range s.data {
		data[k] = v
	}
	ttls := make(map[string]string, len(s.ttls))
	for k, v := range s.ttls {
		ttls[k] = v
	}
	return data, ttls
}

func newTestRedisClient(t *testing.T) (*RedisClient, *fakeRedis) {
	t.Helper()
	srv := startFakeRedis(t)
	client, err := NewRedisClient(RedisConfig{Address: srv.listener.Addr().String(), Timeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, srv
}

func TestRedisClientRequiresAddress(t *testing.T) {
	_, err := NewRedisClient(RedisConfig{})
	require.Error(t, err)
}

func TestRedisClientSetGetDelete(t *testing.T) {
	ctx := context.Background()
	client, srv := newTestRedisClient(t)

	require.NoError(t, client.Ping(ctx))
	require.NoError(t, client.Set(ctx, "l2:entity:a:1", []byte(`{"x":1}`), 0))
	require.NoError(t, client.Set(ctx, "l2:entity:a:2", []byte(`{"x":2}`), 1500*time.Millisecond))

	data, ttls := srv.snapshot()
	require.Equal(t, `{"x":1}`, data["l2cache:l2:entity:a:1"])
	require.NotContains(t, ttls, "l2cache:l2:entity:a:1", "non-expiring keys must not carry PX")
	require.Equal(t, "1500", ttls["l2cache:l2:entity:a:2"])

	got, ok, err := client.Get(ctx, "l2:entity:a:1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `{"x":1}`, string(got))

	require.NoError(t, client.Delete(ctx, "l2:entity:a:1"))
	_, ok, err = client.Get(ctx, "l2:entity:a:1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisClientDeletePrefix(t *testing.T) {
	ctx := context.Background()
	client, srv := newTestRedisClient(t)

	for _, key := range []string{"l2:query:q:1", "l2:query:q:2", "l2:query:qq:1", "l2:entity:q:1"} {
		require.NoError(t, client.Set(ctx, key, []byte(`[]`), 0))
	}

	require.NoError(t, client.DeletePrefix(ctx, "l2:query:q:"))

	data, _ := srv.snapshot()
	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	require.Equal(t, []string{"l2cache:l2:entity:q:1", "l2cache:l2:query:qq:1"}, keys)
}

func TestEscapeGlob(t *testing.T) {
	require.Equal(t, `a\*b\?c\[d\]`, escapeGlob("a*b?c[d]"))
}
