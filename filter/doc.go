// Package filter holds streaming operators that handle one vertex or edge
// per call and forward results to a downstream Sink.
//
// DropKeys removes configured annotation keys. It either recomputes the
// content-derived "id" of every forwarded item or, with KeepOriginalID,
// forwards deep copies that keep their original "id":
//
//	values, err := component.MergeArguments(cfg.Filters.DropKeys.Values(), arguments)
//	if err != nil {
//		return err
//	}
//	dkCfg, err := filter.ParseDropKeysConfig(values)
//	if err != nil {
//		return err
//	}
//	out := filter.NewCollector()
//	dk, err := filter.NewDropKeys(dkCfg, out, filter.WithLogger(logger))
//
// Invalid items (nil vertices, edges with a missing endpoint) and items
// that fail to copy are logged and discarded. Only errors from the
// downstream Sink are returned.
package filter
