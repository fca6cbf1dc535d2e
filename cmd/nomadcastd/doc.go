// Command nomadcastd runs and inspects the mesh podcast cache daemon.
package main
