// Package chats implements the in-memory, versioned store of conversational
// state: a list of conversations, each holding an ordered sequence of
// messages, each message composed of content fragments (text, images,
// errors, placeholders).
//
// The Store is the single mutation entry point. Each operation locates the
// target conversation, applies a pure transformation producing a new
// conversation record (structural sharing: untouched conversations and
// messages are reused by reference), and updates token counts where content
// changed. Because of copy-on-write, a reader holding an older snapshot
// never observes a half-applied mutation.
//
// Token accounting is lazy and cache-based: a message's count is only
// recomputed when forced or when the cache is unset, and the
// conversation-level total is a cheap fold over the cached counts. The
// estimator and the model registry are injected collaborators; without them
// counts simply stay at 0 ("unknown").
//
// Persistence lives in the chats/persist subpackage, which serializes the
// conversation list under a monotonically increasing schema version and
// migrates older blobs forward on load.
package chats
