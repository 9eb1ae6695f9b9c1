package browser

// queryLocatorJS returns the elements matching a role or label query, in
// document order. Shadow roots are searched too.
const queryLocatorJS = `(kind, role, name, exact) => {
  const norm = (s) => (s || '').replace(/\s+/g, ' ').trim();
  const stripRequired = (s) => s.replace(/\s*\*$/, '');
  const nameMatches = (candidate) => {
    if (name === '') return true;
    const have = stripRequired(norm(candidate));
    const want = norm(name);
    if (exact) return have === want;
    return have.toLowerCase().includes(want.toLowerCase());
  };

  const all = [];
  const walk = (root) => {
    root.querySelectorAll('*').forEach((el) => {
      all.push(el);
      if (el.shadowRoot) walk(el.shadowRoot);
    });
  };
  walk(document);

  const implicitRole = (el) => {
    const tag = el.tagName.toLowerCase();
    const type = (el.getAttribute('type') || '').toLowerCase();
    switch (tag) {
      case 'button': return 'button';
      case 'a': case 'area': return el.hasAttribute('href') ? 'link' : '';
      case 'textarea': return 'textbox';
      case 'select': return (el.multiple || el.size > 1) ? 'listbox' : 'combobox';
      case 'h1': case 'h2': case 'h3': case 'h4': case 'h5': case 'h6': return 'heading';
      case 'nav': return 'navigation';
      case 'dialog': return 'dialog';
      case 'input':
        if (['button', 'submit', 'reset', 'image'].includes(type)) return 'button';
        if (type === 'checkbox') return 'checkbox';
        if (type === 'radio') return 'radio';
        if (type === 'search') return 'searchbox';
        if (['', 'text', 'email', 'tel', 'url'].includes(type)) return 'textbox';
        return '';
    }
    return '';
  };
  const roleOf = (el) => {
    const explicit = norm(el.getAttribute('role')).split(' ')[0];
    return explicit ? explicit.toLowerCase() : implicitRole(el);
  };

  const textOf = (el) => norm(el.innerText !== undefined ? el.innerText : el.textContent);
  const labelledBy = (el) => {
    const ids = norm(el.getAttribute('aria-labelledby')).split(' ').filter(Boolean);
    return norm(ids.map((id) => {
      const root = el.getRootNode();
      const node = (root && root.getElementById && root.getElementById(id)) || document.getElementById(id);
      return node ? textOf(node) : '';
    }).join(' '));
  };
  const labelsOf = (el) => {
    const out = [];
    if (el.labels) Array.from(el.labels).forEach((label) => out.push(textOf(label)));
    return out;
  };
  const nameFromContent = new Set([
    'button', 'link', 'tab', 'menuitem', 'menuitemcheckbox', 'menuitemradio', 'option',
    'heading', 'checkbox', 'radio', 'switch', 'treeitem', 'cell', 'columnheader', 'rowheader', 'tooltip'
  ]);
  const accessibleName = (el, r) => {
    const byId = labelledBy(el);
    if (byId) return byId;
    const aria = norm(el.getAttribute('aria-label'));
    if (aria) return aria;
    const labels = labelsOf(el).filter(Boolean);
    if (labels.length) return labels.join(' ');
    const tag = el.tagName.toLowerCase();
    if (tag === 'input') {
      const type = (el.getAttribute('type') || '').toLowerCase();
      if (['button', 'submit', 'reset'].includes(type)) {
        return norm(el.value) || (type === 'submit' ? 'Submit' : type === 'reset' ? 'Reset' : '');
      }
      if (type === 'image') return norm(el.getAttribute('alt'));
    }
    if (tag === 'img') return norm(el.getAttribute('alt'));
    if (nameFromContent.has(r)) {
      const text = textOf(el);
      if (text) return text;
    }
    return norm(el.getAttribute('title')) || norm(el.getAttribute('placeholder'));
  };

  if (kind === 'role') {
    const want = role.toLowerCase();
    return all.filter((el) => roleOf(el) === want && nameMatches(accessibleName(el, want)));
  }
  return all.filter((el) => {
    const candidates = labelsOf(el);
    candidates.push(labelledBy(el), norm(el.getAttribute('aria-label')));
    return candidates.some((c) => c && nameMatches(c));
  });
}`

// accessibleNamesJS lists the accessible names of every visible element with
// the given role. It backs failure diagnostics.
const accessibleNamesJS = `(role) => {
  const norm = (s) => (s || '').replace(/\s+/g, ' ').trim();
  const nodes = Array.from(document.querySelectorAll('[role]'))
    .filter((el) => norm(el.getAttribute('role')).split(' ')[0].toLowerCase() === role.toLowerCase());
  return nodes
    .filter((el) => { const r = el.getBoundingClientRect(); return r.width > 0 && r.height > 0; })
    .map((el) => norm(el.getAttribute('aria-label')) || norm(el.innerText || el.textContent))
    .filter(Boolean)
    .slice(0, 50);
}`
