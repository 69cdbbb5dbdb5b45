// Package registry shares expensive resources (database handles, network
// clients, writers) between independent callers.
//
// A Registry opens a resource the first time its key is acquired and hands
// out strong ownership handles to it. It only observes the resource through
// a weak handle, so the resource is closed as soon as the last caller
// releases its handle, unless the registry is configured to let recently
// used entries linger.
package registry
