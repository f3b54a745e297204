package device

import (
	"errors"
	"fmt"

	"github.com/taoyao-code/deck-driver/internal/protocol/loupedeck"
)

// ErrClosed 设备已关闭，实例不可复用
var ErrClosed = errors.New("device closed")

// CommandError 指令未能送达设备
type CommandError struct {
	Cmd loupedeck.Command
	Err error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s: %v", e.Cmd, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// ValidationError 参数在发送前即不合法，不产生任何IO
type ValidationError struct {
	Field string
	Value string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Value)
}

// UnsupportedError 当前型号不具备的能力
type UnsupportedError struct {
	Feature string
	Model   string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s not available on %s", e.Feature, e.Model)
}
