package memory_test

import (
	"testing"

	"github.com/warp/creator-rewards/loyalty"
	"github.com/warp/creator-rewards/store/memory"
	"github.com/warp/creator-rewards/store/storetest"
)

func TestMemoryStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) loyalty.TxStore { return memory.New() })
}
