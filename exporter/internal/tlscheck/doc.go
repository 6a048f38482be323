// Package tlscheck inspects the leaf certificate served at a store URL.
package tlscheck
