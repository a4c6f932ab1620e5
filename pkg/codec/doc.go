// Package codec reads and writes record streams described by a layout.
//
// A Formatter binds one parsed layout.Definition to one input or output
// stream. Each ReadRecord call reads one physical record, classifies it and
// converts it field by field into a record.DataRecord. Each WriteRecord call
// does the reverse.
//
// # Wire formats
//
// Fixed files carry records of exactly record-length bytes. When a
// record-separator is declared it must follow every record; the last record
// of a stream may omit it. Field positions are 1-based byte offsets.
//
// Variable files are delimited text. The byte stream is decoded with the
// layout's text-encoding, then split on the record separator and the field
// separator. A quoting-delimiter protects separators inside a value and is
// escaped by doubling it. Writers quote every value when a quoting-delimiter
// is declared. Field positions are 1-based column indexes.
//
// # Classification
//
// When a layout has a Classifier section its fields are decoded first and
// compared with each record type's conditions. The first record type, in
// declaration order, whose conditions all match is used. Without a Classifier
// section a layout has a single record type after the optional title.
//
// When requires-title is set the first record is always the title record,
// and a later record whose values satisfy the title conditions is rejected.
//
// # Usage
//
//	def, err := layout.ParseFile("books.fmt")
//	if err != nil {
//	    return err
//	}
//
//	f := codec.NewFormatter(codec.WithLogger(log))
//	f.SetDefinition(def)
//	if err := f.Initialize(); err != nil {
//	    return err
//	}
//	f.SetInputStream(file)
//	defer f.Close()
//
//	for {
//	    rec, err := f.ReadRecord()
//	    if err == io.EOF {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    // use rec
//	}
//
// A Factory shares parsed layouts between formatters through a layout.Cache.
//
// # Errors
//
// Data that does not match its layout yields *InvalidDataFormatError, which
// carries the record number, field name, classifier values and file paths.
// Calls made out of order return an error wrapping ErrIllegalState. Bad
// arguments, such as an unknown record type or a missing required value,
// return an error wrapping ErrIllegalArgument.
//
// # Thread Safety
//
// A Formatter is bound to one stream and is not safe for concurrent use.
// Initialized layout definitions are read-only and may be shared.
package codec
