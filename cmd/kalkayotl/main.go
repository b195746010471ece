// Public domain.

package main

import "github.com/tzdwi/Kalkayotl/internal/kalprog"

func main() {
	kalprog.Main()
}
