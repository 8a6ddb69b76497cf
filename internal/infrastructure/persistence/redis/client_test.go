package redis

import (
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestClient_Key(t *testing.T) {
	rdb := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()

	assert.Equal(t, "docqa:summary:d1", NewClientFromRedis(rdb, "docqa:").Key("summary", "d1"))
	assert.Equal(t, "ratelimit:queries:s1", NewClientFromRedis(rdb, "").Key("ratelimit", "queries", "s1"))

	w := NewQueryWindow(NewClientFromRedis(rdb, "docqa"))
	assert.Equal(t, "docqa:ratelimit:queries:s1", w.key("s1"))
}
