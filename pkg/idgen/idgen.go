package idgen

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/sonyflake"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Generator hands out X-Operation-Id values. Snowflake ids are preferred;
// a random UUID stands in when the snowflake clock cannot serve.
type Generator struct {
	sf *sonyflake.Sonyflake
}

// NewGenerator creates a generator for one process
func NewGenerator(machineID uint16) *Generator {
	sf, _ := sonyflake.New(sonyflake.Settings{
		StartTime: epoch,
		MachineID: func() (uint16, error) { return machineID, nil },
	})
	return &Generator{sf: sf}
}

// Next returns a fresh id
func (g *Generator) Next() string {
	if g.sf != nil {
		if id, err := g.sf.NextID(); err == nil {
			return strconv.FormatUint(id, 10)
		}
	}
	return uuid.NewString()
}

var (
	defaultGen *Generator
	once       sync.Once
)

// SetMachineID configures the process-wide generator. It only has an effect
// before the first OperationId call.
func SetMachineID(machineID uint16) {
	once.Do(func() {
		defaultGen = NewGenerator(machineID)
	})
}

// OperationId returns an id for tagging one outbound call
func OperationId() string {
	SetMachineID(1)
	return defaultGen.Next()
}
