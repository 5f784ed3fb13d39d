// Command stockwatch polls product pages and alerts on restocks.
package main

import "github.com/JakeFAU/stockwatch/cmd"

func main() {
	cmd.Execute()
}
