// Package ui renders subprocess activity as short console lines when the
// console log format is selected.
package ui
