package vm

import (
	"bufio"
	"fmt"
	"io"
	"time"

	"tok/internal/object"
)

func printValue(w io.Writer, v object.Value) {
	fmt.Fprintln(w, v.Inspect())
}

// clockNative returns seconds since the VM started, as a double.
func (vm *VM) clockNative([]object.Value) (object.Value, error) {
	return object.Number(time.Since(vm.started).Seconds()), nil
}

// readLineNative reads one line from the VM's input, without the trailing
// newline. End of input yields nil rather than an error so scripts can loop
// until exhaustion.
func (vm *VM) readLineNative([]object.Value) (object.Value, error) {
	if vm.stdin == nil {
		return object.Nil(), nil
	}
	if vm.lineReader == nil {
		vm.lineReader = bufio.NewReader(vm.stdin)
	}
	line, err := vm.lineReader.ReadString('\n')
	if err != nil && line == "" {
		return object.Nil(), nil
	}
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return object.ObjVal(vm.heap.Intern(line)), nil
}
