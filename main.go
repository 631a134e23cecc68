// tripplanner runs the Live Trip Mode service.
// The HTTP surface lives in backend/, the engine in internal/.
package main

import (
	"os"

	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
