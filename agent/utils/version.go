package utils

// Version of the module. Release builds set it with -ldflags "-X".
var Version = "v0.1.0"
