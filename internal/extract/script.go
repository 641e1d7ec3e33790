package extract

// Script is evaluated in the page with (selector, maxBytes). Each element is
// read inside its own try/catch so one failure never aborts the pass.
const Script = `
(selector, maxBytes) => {
	const nodes = document.querySelectorAll(selector);
	const out = { fragments: [], status: { total: nodes.length, processed: 0, errors: [] } };
	nodes.forEach((el) => {
		try {
			const text = el.textContent || '';
			if (maxBytes > 0 && new TextEncoder().encode(text).length > maxBytes) {
				throw new Error('fragment exceeds ' + maxBytes + ' bytes');
			}
			out.fragments.push(text);
			out.status.processed++;
		} catch (e) {
			out.status.errors.push(String((e && e.message) || e));
		}
	});
	return out;
}
`

// CountScript returns how many elements match a selector. Used by the
// schema check.
const CountScript = `(selector) => document.querySelectorAll(selector).length`

// OuterHTMLScript returns the serialised document.
const OuterHTMLScript = `() => document.documentElement.outerHTML`
