// Command provxform applies provenance graph operators to graph files and
// hosts them as Redis queue workers.
//
//	provxform dropkeys --in raw.json --out clean.json --args "EdgeDropKeys=seq VertexDropKeys=pid KeepOriginalID=false"
//	provxform merge --keys name,path --in clean.json
//	provxform worker merge --keys name --redis-url redis://localhost:6379
//	provxform operators
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
