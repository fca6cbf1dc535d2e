// Package subscriptions reads the subscription list and reports when it
// changes on disk.
//
// The list is a small YAML file users hand-edit, so loading is strict
// about locator syntax and duplicate shows, and the watcher debounces
// the editor's write-then-rename churn into a single reload.
package subscriptions
