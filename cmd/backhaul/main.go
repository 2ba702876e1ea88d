package main

import (
	"github.com/arthur-debert/backhaul/pkg/logging"
)

func main() {
	logging.Must(Execute(), "backhaul failed")
}
