package systems

import (
	"sync/atomic"

	"github.com/spaghettifunk/assetstream/engine/renderer/metadata"
)

type completionNode struct {
	value metadata.UploadCompletion
	next  *completionNode
}

// CompletionChannel hands finished uploads from the transfer scheduler to the
// polling consumer. Publish pushes onto a lock-free stack and DrainAll swaps
// the whole stack out, so neither side ever blocks the other and no entry can
// be skipped.
type CompletionChannel struct {
	head atomic.Pointer[completionNode]
}

func NewCompletionChannel() *CompletionChannel {
	return &CompletionChannel{}
}

func (cc *CompletionChannel) Publish(c metadata.UploadCompletion) {
	node := &completionNode{value: c}
	for {
		head := cc.head.Load()
		node.next = head
		if cc.head.CompareAndSwap(head, node) {
			return
		}
	}
}

// DrainAll takes every published completion, oldest first. It returns nil
// when nothing was published since the previous drain.
func (cc *CompletionChannel) DrainAll() []metadata.UploadCompletion {
	head := cc.head.Swap(nil)
	if head == nil {
		return nil
	}

	var out []metadata.UploadCompletion
	for node := head; node != nil; node = node.next {
		out = append(out, node.value)
	}
	// the stack yields newest first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
