// Package compdb turns a closed session into compilation database entries.
package compdb
