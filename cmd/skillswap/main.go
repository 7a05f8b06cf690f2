// Command skillswap is the terminal client of the SkillSwap server.
package main

func main() {
	Execute()
}
