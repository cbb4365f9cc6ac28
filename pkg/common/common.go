package common

import (
	"math/rand"
	"time"

	"github.com/bwmarrin/snowflake"
)

var snowflakeNode *snowflake.Node

func init() {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	var err error
	snowflakeNode, err = snowflake.NewNode(r.Int63n(1024))
	if err != nil {
		panic(err)
	}
}

// UUIDint64 returns a snowflake id suitable for database primary keys.
func UUIDint64() int64 {
	return snowflakeNode.Generate().Int64()
}
