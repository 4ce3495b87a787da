// Command hlsfarm runs the encoding farm's processes (dispatcher, worker,
// API) and queries the catalog from the terminal.
package main
