// Command leadenrich finds and enriches business contacts for a list of company domains.
package main

import (
	"github.com/JakeFAU/lead-enrichment/cmd"
)

func main() {
	cmd.Execute()
}
