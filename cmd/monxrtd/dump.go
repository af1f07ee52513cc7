// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/monoxr/runtime/internal/shm"
)

// dumpRegion writes a human-readable table of region's device entries,
// for "monxrtd test" smoke-testing a deployment without a client.
func dumpRegion(w io.Writer, region *shm.Region) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CLASS\tHMD\tVIEWS\tDISPLAY\tREFRESH_HZ\tIPD_MM")
	table := region.Table()
	for i := range table.Devices {
		d := &table.Devices[i]
		if d.Name != shm.ClassHMD || !d.HMD.Present {
			fmt.Fprintf(tw, "%d\tno\t-\t-\t-\t-\n", d.Name)
			continue
		}
		fmt.Fprintf(tw, "%d\tyes\t%d\t%dx%d\t%.1f\t%.1f\n",
			d.Name, d.HMD.ViewCount, d.HMD.DisplayWidth, d.HMD.DisplayHeight, d.HMD.RefreshHz, d.HMD.IPDMM)
	}
	tw.Flush()
	fmt.Fprintf(w, "region size: %d bytes\n", len(region.Bytes()))
}
