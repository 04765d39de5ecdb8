/*
Package iso7816 implements the ISO/IEC 7816-4 building blocks needed on both
sides of a contactless application exchange.

On the reader side it encodes Command APDUs, parses Response APDUs and drives
the T=0 follow-up rules (61XX / 6CXX) through Client. On the emulated-card side
it parses inbound Command APDUs and encodes Response APDUs terminated by a
Status Word.

# Status Words

Every response ends with a 2-byte Status Word (SW).
  - 0x9000: Success (OK).
  - 0x61XX: Success, but response data is still available (XX bytes).
  - 0x6CXX: Error, wrong length expectation (XX is the correct length).
  - Other: Various warning and error conditions, see the SW_* constants.

# Usage Example: Selecting an application

	client := iso7816.NewClient(card)
	trace, err := client.Send(iso7816.SelectByAID(iso7816.BasicClass(), aid))
	if err != nil {
	    log.Fatal(err)
	}
	if !trace.IsSuccess() {
	    log.Printf("select failed: %s", trace.Last().Response.Status.Verbose())
	}

# Usage Example: Answering a SELECT on an emulated card

	if iso7816.IsSelectOf(frame, aid) {
	    return iso7816.NewResponseAPDU(fci, iso7816.SW_NO_ERROR).Bytes()
	}
*/
package iso7816
