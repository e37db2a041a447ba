//go:build tools

package solid

import (
	_ "github.com/golang/mock/mockgen"
)
