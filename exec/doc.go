// Package exec drives compiled plans against table storage.
//
// A Cursor pulls one row per Next call; operators stream except where
// the semantics force buffering (sort, aggregate, the inner side of a
// join). Mutating plans run eagerly on the first Next and report their
// affected-row count through the cursor.
//
//	cursor, err := exec.Run(compiled, args, env)
//	for {
//	    row, err := cursor.Next()
//	    if err == exec.Done {
//	        break
//	    }
//	    if err != nil { ... }
//	    // use row
//	}
//
// A Next call after Done is a usage error; the statement layer builds a
// fresh cursor on reset.
package exec
