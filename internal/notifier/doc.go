// Package notifier delivers one message to every ADMIN identity. Each
// recipient is attempted independently: a failed send is recorded in the
// Result and never stops the batch.
package notifier
