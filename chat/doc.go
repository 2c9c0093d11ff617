// Package chat answers questions from a vector collection.
//
// A question is searched against the collection, the nearest documents are
// summarized into a context block, and the context is sent to a chat model
// together with the recent conversation history.
package chat
