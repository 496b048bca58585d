// Package testutil contains helper builders and testify mocks used across
// tests to reduce boilerplate when constructing agent profiles, histories
// and downstream clients. They are not intended for production usage.
package testutil
