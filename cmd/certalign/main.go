// certalign verifies that generated certificates render their text fields
// at the same positions as a reference certificate, within a configurable
// pixel tolerance.
package main

func main() {
	Execute()
}
