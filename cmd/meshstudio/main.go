// Command meshstudio serves the face mesh landmark picker and offers batch
// tools for detection, analysis and preset export.
package main

func main() {
	Execute()
}
